package binance

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"trendbot/internal/model"
)

// ParseStreamMessage decodes one combined-stream message
// ({"stream": "...", "data": {...}}) or a raw single-stream payload.
// ok is false for messages that carry no engine event, such as klines that
// are still open or subscription acks.
func ParseStreamMessage(raw []byte, interval string) (ev model.Event, ok bool, err error) {
	if !gjson.ValidBytes(raw) {
		return model.Event{}, false, fmt.Errorf("invalid json: %.64s", raw)
	}
	root := gjson.ParseBytes(raw)
	data := root
	if d := root.Get("data"); d.Exists() {
		data = d
	}

	switch data.Get("e").String() {
	case "kline":
		k := data.Get("k")
		if !k.Get("x").Bool() {
			return model.Event{}, false, nil
		}
		b := model.Bar{
			Symbol:    strings.ToUpper(k.Get("s").String()),
			Interval:  k.Get("i").String(),
			OpenTime:  time.UnixMilli(k.Get("t").Int()).UTC(),
			CloseTime: time.UnixMilli(k.Get("T").Int()).UTC(),
			Open:      k.Get("o").Float(),
			High:      k.Get("h").Float(),
			Low:       k.Get("l").Float(),
			Close:     k.Get("c").Float(),
			Volume:    k.Get("v").Float(),
			Closed:    true,
		}
		if b.Interval == "" {
			b.Interval = interval
		}
		return model.BarEvent(b), true, nil

	case "trade":
		t := model.Tick{
			Symbol: strings.ToUpper(data.Get("s").String()),
			Price:  data.Get("p").Float(),
			Qty:    data.Get("q").Float(),
			TS:     time.UnixMilli(data.Get("T").Int()).UTC(),
		}
		if t.Price <= 0 {
			return model.Event{}, false, fmt.Errorf("trade without price: %.64s", raw)
		}
		return model.TickEvent(t), true, nil
	}

	return model.Event{}, false, nil
}

// ParseKlines decodes a /api/v3/klines response. Each kline is an array of
// [openTime, open, high, low, close, volume, closeTime, ...].
func ParseKlines(body []byte, symbol, interval string) ([]model.Bar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid klines json: %.64s", body)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		// Error payloads look like {"code":-1121,"msg":"Invalid symbol."}
		return nil, fmt.Errorf("binance error %d: %s", root.Get("code").Int(), root.Get("msg").String())
	}

	items := root.Array()
	bars := make([]model.Bar, 0, len(items))
	for _, item := range items {
		f := item.Array()
		if len(f) < 7 {
			return nil, fmt.Errorf("kline with %d fields", len(f))
		}
		bars = append(bars, model.Bar{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.UnixMilli(f[0].Int()).UTC(),
			Open:      f[1].Float(),
			High:      f[2].Float(),
			Low:       f[3].Float(),
			Close:     f[4].Float(),
			Volume:    f[5].Float(),
			CloseTime: time.UnixMilli(f[6].Int()).UTC(),
			Closed:    true,
		})
	}
	return bars, nil
}
