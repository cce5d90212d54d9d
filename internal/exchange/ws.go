package exchange

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"autotrader/internal/models"
	"autotrader/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Feed delivers kline updates for a set of (symbol, interval) pairs over
// one multiplexed stream. onUpdate receives every update including
// in-progress bars; Candle.Final tells them apart. onUpdate must not
// block: it is called from the feed's read loop.
type Feed interface {
	Subscribe(ctx context.Context, symbols []string, intervals []models.Interval, onUpdate func(models.Candle)) (io.Closer, error)
}

type WsFeed struct {
	baseURL string
	dialer  *websocket.Dialer
}

func NewWsFeed(baseURL string) *WsFeed {
	return &WsFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type wsSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

// setConn installs a freshly dialed conn unless the subscription was
// torn down in the meantime. Close cancels first and closes the conn it
// sees under the mutex, so a redial that lands mid-teardown must close
// its own conn here or nobody will.
func (s *wsSubscription) setConn(ctx context.Context, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		_ = conn.Close()
		return false
	}
	s.conn = conn
	return true
}

// Close tears the stream down and waits for the read loop to exit.
func (s *wsSubscription) Close() error {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (f *WsFeed) Subscribe(
	ctx context.Context,
	symbols []string,
	intervals []models.Interval,
	onUpdate func(models.Candle),
) (io.Closer, error) {
	if len(symbols) == 0 || len(intervals) == 0 {
		return nil, errors.New("empty subscription")
	}

	streams := make([]string, 0, len(symbols)*len(intervals))
	for _, symbol := range symbols {
		for _, interval := range intervals {
			streams = append(streams, strings.ToLower(symbol)+"@kline_"+string(interval))
		}
	}
	url := f.baseURL + "/stream?streams=" + strings.Join(streams, "/")

	subCtx, cancel := context.WithCancel(ctx)

	// first dial is synchronous so the caller learns about unreachable
	// endpoints right away; later redials happen inside the read loop
	conn, _, err := f.dialer.DialContext(subCtx, url, nil)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "dial %d streams", len(streams))
	}

	sub := &wsSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
		conn:   conn,
	}
	go f.readLoop(subCtx, sub, url, onUpdate)

	logger.Info("[ws] subscribed to %d streams", len(streams))
	return sub, nil
}

func (f *WsFeed) readLoop(ctx context.Context, sub *wsSubscription, url string, onUpdate func(models.Candle)) {
	defer close(sub.done)

	for {
		sub.mu.Lock()
		conn := sub.conn
		sub.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("[ws] read error: %v", err)
				}
				_ = conn.Close()
				break
			}
			if candle, ok := parseKlineFrame(msg); ok {
				onUpdate(candle)
			}
		}

		// redial unless the subscription was torn down
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}

			conn, _, err := f.dialer.DialContext(ctx, url, nil)
			if err != nil {
				logger.Error("[ws] redial error: %v", err)
				continue
			}
			if !sub.setConn(ctx, conn) {
				return
			}
			break
		}
	}
}

type klineFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Kline struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Final     bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func parseKlineFrame(msg []byte) (models.Candle, bool) {
	var frame klineFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return models.Candle{}, false
	}
	k := frame.Data.Kline
	if k.Symbol == "" {
		return models.Candle{}, false
	}
	interval, ok := models.ParseInterval(k.Interval)
	if !ok {
		return models.Candle{}, false
	}

	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	closep, err4 := strconv.ParseFloat(k.Close, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return models.Candle{}, false
	}

	return models.Candle{
		Symbol:   k.Symbol,
		Interval: interval,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closep,
		Start:    time.UnixMilli(k.StartTime),
		End:      time.UnixMilli(k.CloseTime),
		Final:    k.Final,
	}, true
}

var _ Feed = (*WsFeed)(nil)
