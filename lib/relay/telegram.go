package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cocos-collector/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

type TelegramOptions struct {
	BotToken string `json:"bot_token"`
	ChatId   string `json:"chat_id"`
}

// Telegram implements Relay over the bot HTTP API. The update offset
// doubles as the message marker.
type Telegram struct {
	http   *resty.Client
	chatId string
}

func NewTelegram(opts TelegramOptions) *Telegram {
	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("https://api.telegram.org/bot%s", opts.BotToken))
	client.SetTimeout(time.Second * 15)
	restyutil.InstrumentClient(client, nil, nil)

	return &Telegram{
		http:   client,
		chatId: opts.ChatId,
	}
}

type telegramUpdate struct {
	UpdateId int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
	} `json:"message"`
}

type telegramResponse struct {
	Ok     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	res, err := t.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": t.chatId,
			"text":    text,
		}).
		Post("/sendMessage")
	if err != nil {
		return err
	}
	if res.StatusCode() != 200 {
		return fmt.Errorf("telegram sendMessage: status %d", res.StatusCode())
	}
	return nil
}

func (t *Telegram) Poll(ctx context.Context, since int64) ([]Message, error) {
	res, err := t.http.R().
		SetContext(ctx).
		SetQueryParam("offset", fmt.Sprintf("%d", since+1)).
		Get("/getUpdates")
	if err != nil {
		return nil, err
	}

	var body telegramResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return nil, err
	}
	if !body.Ok {
		return nil, fmt.Errorf("telegram getUpdates: not ok")
	}

	var out []Message
	for _, update := range body.Result {
		if update.Message == nil {
			continue
		}
		out = append(out, Message{
			Marker: update.UpdateId,
			Text:   update.Message.Text,
		})
	}
	return out, nil
}

func (t *Telegram) LastMarker(ctx context.Context) (int64, error) {
	res, err := t.http.R().
		SetContext(ctx).
		Get("/getUpdates")
	if err != nil {
		return 0, err
	}

	var body telegramResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return 0, err
	}
	if !body.Ok {
		return 0, fmt.Errorf("telegram getUpdates: not ok")
	}

	var last int64
	for _, update := range body.Result {
		if update.UpdateId > last {
			last = update.UpdateId
		}
	}
	return last, nil
}
