package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/money"
)

// TonCenter is a client for the toncenter v3 REST indexer.
type TonCenter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	metrics *metrics.Metrics
}

func NewTonCenter(baseURL, apiKey string, client *http.Client, m *metrics.Metrics) *TonCenter {
	if client == nil {
		client = http.DefaultClient
	}
	return &TonCenter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		metrics: m,
	}
}

func (t *TonCenter) Transactions(ctx context.Context, account string, limit uint32) (txs []TonTransaction, err error) {
	started := time.Now()
	defer func() {
		t.metrics.ObserveUpstream("toncenter", time.Since(started).Seconds(), err)
	}()

	u, err := url.Parse(t.baseURL + "/transactions")
	if err != nil {
		return nil, configErr("toncenter_api", "%v", err)
	}
	q := u.Query()
	q.Set("account", account)
	q.Set("limit", strconv.FormatUint(uint64(limit), 10))
	q.Set("sort", "desc")
	q.Set("include_msg_body", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if t.apiKey != "" {
		req.Header.Set("X-API-Key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toncenter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		return nil, fmt.Errorf("toncenter %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page tcTransactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode toncenter response: %w", err)
	}

	txs = make([]TonTransaction, 0, len(page.Transactions))
	for _, tx := range page.Transactions {
		txs = append(txs, tx.toTonTransactions()...)
	}
	return txs, nil
}

type tcTransactionsResponse struct {
	Transactions []tcTransaction `json:"transactions"`
}

type tcTransaction struct {
	Hash          string      `json:"hash"`
	TransactionID string      `json:"transaction_id"`
	Account       string      `json:"account"`
	LT            tcNumber    `json:"lt"`
	Now           int64       `json:"now"`
	InMsg         *tcMessage  `json:"in_msg"`
	InMsgs        []tcMessage `json:"in_msgs"`
}

type tcMessage struct {
	Source         string            `json:"source"`
	Destination    string            `json:"destination"`
	Value          tcNumber          `json:"value"`
	Amount         tcNumber          `json:"amount"`
	Message        string            `json:"message"`
	Comment        string            `json:"comment"`
	Text           string            `json:"text"`
	Body           string            `json:"body"`
	MsgData        *tcMsgData        `json:"msg_data"`
	MessageContent *tcMessageContent `json:"message_content"`
}

type tcMsgData struct {
	Text string `json:"text"`
	Body string `json:"body"`
}

type tcMessageContent struct {
	Body    string `json:"body"`
	Decoded *struct {
		Type    string `json:"type"`
		Comment string `json:"comment"`
	} `json:"decoded"`
}

// tcNumber accepts integers encoded either as JSON strings or numbers and
// keeps the digits verbatim. Anything else becomes empty.
type tcNumber string

func (n *tcNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if money.IsUnits(s) {
		*n = tcNumber(s)
	} else {
		*n = ""
	}
	return nil
}

func (tx tcTransaction) toTonTransactions() []TonTransaction {
	hash := tx.Hash
	if hash == "" {
		hash = tx.TransactionID
	}
	hash = tonHashToHex(hash)
	lt, _ := strconv.ParseUint(string(tx.LT), 10, 64)

	msgs := make([]tcMessage, 0, 1+len(tx.InMsgs))
	if tx.InMsg != nil {
		msgs = append(msgs, *tx.InMsg)
	}
	msgs = append(msgs, tx.InMsgs...)

	out := make([]TonTransaction, 0, len(msgs))
	for _, m := range msgs {
		value := string(m.Value)
		if value == "" {
			value = string(m.Amount)
		}
		dest := m.Destination
		if dest == "" {
			dest = tx.Account
		}
		comment, ok := m.comment()
		out = append(out, TonTransaction{
			Hash:        hash,
			LT:          lt,
			Now:         time.Unix(tx.Now, 0),
			Source:      m.Source,
			Destination: dest,
			Value:       value,
			Comment:     comment,
			HasComment:  ok,
		})
	}
	return out
}

// comment prefers plain-text fields and falls back to decoding the body,
// first as a comment cell and then as base64 text.
func (m tcMessage) comment() (string, bool) {
	candidates := []string{m.Message, m.Comment, m.Text}
	if m.MsgData != nil {
		candidates = append(candidates, m.MsgData.Text)
	}
	if m.MessageContent != nil && m.MessageContent.Decoded != nil && m.MessageContent.Decoded.Type == "text_comment" {
		candidates = append(candidates, m.MessageContent.Decoded.Comment)
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c, true
		}
	}

	bodies := []string{m.Body}
	if m.MsgData != nil {
		bodies = append(bodies, m.MsgData.Body)
	}
	if m.MessageContent != nil {
		bodies = append(bodies, m.MessageContent.Body)
	}
	for _, b := range bodies {
		if b == "" {
			continue
		}
		if c, ok := DecodeTonCommentBOC(b); ok {
			return c, true
		}
		if c, ok := DecodeBase64Text(b); ok {
			return c, true
		}
	}
	return "", false
}

// tonHashToHex converts the indexer's base64 hashes to the hex form used by
// the liteserver path so receipts look the same whichever tier matched.
func tonHashToHex(h string) string {
	if raw, err := hex.DecodeString(h); err == nil && len(raw) == 32 {
		return strings.ToLower(h)
	}
	if raw, ok := decodeBase64(h); ok && len(raw) == 32 {
		return hex.EncodeToString(raw)
	}
	return h
}
