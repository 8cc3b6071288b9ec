package quote

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/repository"
)

const reconnectDelay = 3 * time.Second

// Feed consumes a websocket tick stream and keeps the quote cache current
type Feed struct {
	url    string
	quotes repository.Quotes
}

// NewFeed is constructor
func NewFeed(url string, quotes repository.Quotes) *Feed {
	return &Feed{url: url, quotes: quotes}
}

type tick struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Update int64           `json:"ts"` // unix milliseconds
}

// Listen reads ticks until the context is cancelled, reconnecting after
// errors. Bad ticks are logged and skipped, they never stop the stream
func (f *Feed) Listen(ctx context.Context) {
	for {
		if err := f.consume(ctx); err != nil {
			log.Errorf("quote feed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err = conn.Close(); err != nil {
			log.Error(err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var t tick
		if err = conn.ReadJSON(&t); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if t.Symbol == "" || !t.Bid.IsPositive() || !t.Ask.IsPositive() {
			log.Errorf("quote feed: dropped bad tick %+v", t)
			continue
		}
		err = f.quotes.Set(&model.Quote{
			Symbol: t.Symbol,
			Bid:    t.Bid,
			Ask:    t.Ask,
			Update: time.UnixMilli(t.Update),
		})
		if err != nil {
			log.Error(err)
		}
	}
}
