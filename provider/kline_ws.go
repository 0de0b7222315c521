package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hedgegrid/logger"
	"hedgegrid/market"
)

const (
	futuresStreamBase = "wss://fstream.binance.com/ws"

	readTimeout    = 90 * time.Second
	reconnectDelay = 5 * time.Second
)

// klinePayload is the Binance futures kline stream message. The uppercase
// keys are declared even where unused: encoding/json matches field names
// case-insensitively, so without them "E" would land in the string field
// tagged "e" (and "L"/"T"/"V" in "l"/"t"/"v") and fail the whole unmarshal.
type klinePayload struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime   int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Open        string `json:"o"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Close       string `json:"c"`
		Volume      string `json:"v"`
		QuoteVolume string `json:"q"`
		TradeCount  int64  `json:"n"`
		FirstTrade  int64  `json:"f"`
		LastTrade   int64  `json:"L"`
		TakerVolume string `json:"V"`
		TakerQuote  string `json:"Q"`
		Closed      bool   `json:"x"`
	} `json:"k"`
}

// KlineFeed streams closed klines for one symbol as validated bars. The
// connection is re-dialed on any read failure; in-progress candles are
// dropped so consumers only ever see finished bars.
type KlineFeed struct {
	symbol   string
	interval string
	url      string

	bars   chan market.Bar
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewKlineFeed creates a feed for symbol at the given kline interval
// (e.g. "1m", "5m", "1h").
func NewKlineFeed(symbol, interval string) (*KlineFeed, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if interval == "" {
		return nil, fmt.Errorf("kline interval is required")
	}
	return &KlineFeed{
		symbol:   strings.ToUpper(symbol),
		interval: interval,
		url: fmt.Sprintf("%s/%s@kline_%s",
			futuresStreamBase, strings.ToLower(symbol), interval),
		bars:   make(chan market.Bar, 64),
		stopCh: make(chan struct{}),
	}, nil
}

// Bars returns the channel of closed bars. It is closed after Stop.
func (f *KlineFeed) Bars() <-chan market.Bar {
	return f.bars
}

// Start launches the read loop in the background.
func (f *KlineFeed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true

	f.wg.Add(1)
	go f.run()
	logger.Infof("[KlineFeed] started: %s @ %s", f.symbol, f.interval)
}

// Stop closes the feed and waits for the read loop to exit.
func (f *KlineFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	close(f.stopCh)
	f.wg.Wait()
	close(f.bars)
	logger.Infof("[KlineFeed] stopped: %s", f.symbol)
}

func (f *KlineFeed) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.readUntilError(); err != nil {
			logger.Warnf("[KlineFeed] %s stream error: %v, reconnecting in %v",
				f.symbol, err, reconnectDelay)
		}

		select {
		case <-f.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// readUntilError dials once and pumps messages until the connection fails
// or the feed is stopped.
func (f *KlineFeed) readUntilError() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()
	logger.Infof("[KlineFeed] connected: %s", f.url)

	// Unblock the reader when Stop is called.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-f.stopCh:
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.stopCh:
				return nil
			default:
				return err
			}
		}
		f.handleMessage(msg)
	}
}

func (f *KlineFeed) handleMessage(msg []byte) {
	var payload klinePayload
	if err := json.Unmarshal(msg, &payload); err != nil {
		logger.Debugf("[KlineFeed] skipping unreadable message: %v", err)
		return
	}
	if payload.EventType != "kline" || !payload.Kline.Closed {
		return
	}

	bar, err := parseKline(payload)
	if err != nil {
		logger.Warnf("[KlineFeed] %s dropped bad kline: %v", f.symbol, err)
		return
	}

	select {
	case f.bars <- bar:
	case <-f.stopCh:
	default:
		// Slow consumer; dropping the oldest keeps the feed current.
		select {
		case <-f.bars:
		default:
		}
		select {
		case f.bars <- bar:
		default:
		}
	}
}

func parseKline(p klinePayload) (market.Bar, error) {
	vals := make([]float64, 5)
	for i, s := range []string{p.Kline.Open, p.Kline.High, p.Kline.Low, p.Kline.Close, p.Kline.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("bad kline field %q: %w", s, err)
		}
		vals[i] = v
	}
	return market.NewBar(time.UnixMilli(p.Kline.StartTime), vals[0], vals[1], vals[2], vals[3], vals[4])
}
