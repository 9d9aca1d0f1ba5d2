package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rayvtoll/scalp-assist/internal/venue"
	"go.uber.org/zap"
)

const (
	mainnetWSURL = "wss://stream.bybit.com/v5/public/linear"
	testnetWSURL = "wss://stream-testnet.bybit.com/v5/public/linear"

	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 20 * time.Second

	maxReconnectDelay = 30 * time.Second
)

// PriceStream serves successive top-of-book prices from the public
// orderbook.1 stream. Long runs read the bid side, short runs the ask side.
// It satisfies venue.PriceSource and reconnects with capped backoff.
type PriceStream struct {
	url        string
	instrument string
	dir        venue.Direction
	logger     *zap.Logger

	prices chan float64

	mu      sync.Mutex
	bestBid float64
	bestAsk float64
}

var _ venue.PriceSource = (*PriceStream)(nil)

// NewPriceStream creates a stream for one instrument and direction.
func NewPriceStream(testnet bool, instrument string, dir venue.Direction, logger *zap.Logger) *PriceStream {
	url := mainnetWSURL
	if testnet {
		url = testnetWSURL
	}
	return &PriceStream{
		url:        url,
		instrument: instrument,
		dir:        dir,
		logger:     logger,
		// Buffer of one: the consumer only ever wants the latest price,
		// stale intermediates are dropped.
		prices: make(chan float64, 1),
	}
}

// Start dials the stream and launches the read loop. It returns an error
// only if the first connection attempt fails; later disconnects reconnect
// in the background.
func (s *PriceStream) Start(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("price stream connect: %w", err)
	}
	go s.run(ctx, conn)
	return nil
}

// Next blocks until a fresh top-of-book price is available or ctx is done.
func (s *PriceStream) Next(ctx context.Context) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case price := <-s.prices:
		return price, nil
	}
}

func (s *PriceStream) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	sub := fmt.Sprintf(`{"op":"subscribe","args":["orderbook.1.%s"]}`, s.instrument)
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.awaitSubscribeAck(conn); err != nil {
		conn.Close()
		return nil, err
	}
	s.logger.Info("Price stream connected",
		zap.String("url", s.url),
		zap.String("instrument", s.instrument))
	return conn, nil
}

// opAck is the venue's response to an op request such as subscribe.
type opAck struct {
	Success bool   `json:"success"`
	Op      string `json:"op"`
	RetMsg  string `json:"ret_msg"`
}

// awaitSubscribeAck reads frames until the subscribe ack arrives. A
// rejected subscription (bad symbol, bad topic) fails the dial instead of
// leaving a healthy-but-silent socket.
func (s *PriceStream) awaitSubscribeAck(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("awaiting subscribe ack: %w", err)
		}
		var ack opAck
		if err := json.Unmarshal(message, &ack); err != nil || ack.Op != "subscribe" {
			s.handleMessage(message)
			continue
		}
		if !ack.Success {
			return fmt.Errorf("subscription rejected: %s", ack.RetMsg)
		}
		return nil
	}
}

// run owns the connection lifecycle: read until failure, then redial with
// capped exponential backoff until ctx is done.
func (s *PriceStream) run(ctx context.Context, conn *websocket.Conn) {
	delay := time.Second
	for {
		s.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("Price stream disconnected, reconnecting...",
			zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		next, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn("Price stream redial failed", zap.Error(err))
			continue
		}
		delay = time.Second
		conn = next
	}
}

func (s *PriceStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(conn, stopPing)

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Price stream read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		s.handleMessage(message)
	}
}

// pingLoop keeps the connection alive; Bybit expects an op-level ping.
func (s *PriceStream) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`)); err != nil {
				return
			}
		}
	}
}

// orderbookMessage is the shape of an orderbook.1 push. Level entries are
// [price, size] string pairs; a zero size deletes the level.
type orderbookMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Bids [][]string `json:"b"`
		Asks [][]string `json:"a"`
	} `json:"data"`
}

func (s *PriceStream) handleMessage(raw []byte) {
	var msg orderbookMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Topic == "" {
		return // op acks and pongs
	}

	s.mu.Lock()
	if price, ok := topLevel(msg.Data.Bids); ok {
		s.bestBid = price
	}
	if price, ok := topLevel(msg.Data.Asks); ok {
		s.bestAsk = price
	}
	price := s.bestBid
	if s.dir == venue.DirectionShort {
		price = s.bestAsk
	}
	s.mu.Unlock()

	if price > 0 {
		s.publish(price)
	}
}

// publish delivers the latest price, displacing an unconsumed older one.
func (s *PriceStream) publish(price float64) {
	for {
		select {
		case s.prices <- price:
			return
		default:
			select {
			case <-s.prices:
			default:
			}
		}
	}
}

func topLevel(levels [][]string) (float64, bool) {
	if len(levels) == 0 || len(levels[0]) < 2 {
		return 0, false
	}
	price, err := strconv.ParseFloat(levels[0][0], 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	if size, err := strconv.ParseFloat(levels[0][1], 64); err != nil || size <= 0 {
		return 0, false
	}
	return price, true
}
