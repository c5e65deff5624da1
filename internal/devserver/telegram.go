package devserver

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxAuthAge is how old a widget login may be before it is refused
const MaxAuthAge = 24 * time.Hour

var (
	ErrMissingHash = errors.New("missing hash")
	ErrBadHash     = errors.New("hash mismatch")
	ErrAuthExpired = errors.New("auth data expired")
)

// TelegramUser is the identity carried by a widget payload
type TelegramUser struct {
	ID        int64
	FirstName string
	Username  string
}

// VerifyTelegram checks a login widget payload against the bot token. The
// fields are kept as sent so the data check string matches what Telegram
// signed.
func VerifyTelegram(payload []byte, botToken string, now time.Time) (TelegramUser, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return TelegramUser{}, fmt.Errorf("decode payload: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			fields[k] = v
		case json.Number:
			fields[k] = v.String()
		case bool:
			fields[k] = strconv.FormatBool(v)
		case nil:
		default:
			return TelegramUser{}, fmt.Errorf("field %q: unsupported value", k)
		}
	}

	hash, ok := fields["hash"]
	if !ok || hash == "" {
		return TelegramUser{}, ErrMissingHash
	}
	delete(fields, "hash")

	want := SignTelegram(fields, botToken)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(hash))) {
		return TelegramUser{}, ErrBadHash
	}

	authDate, _ := strconv.ParseInt(fields["auth_date"], 10, 64)
	if now.Sub(time.Unix(authDate, 0)) > MaxAuthAge {
		return TelegramUser{}, ErrAuthExpired
	}

	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return TelegramUser{}, fmt.Errorf("invalid id %q", fields["id"])
	}
	return TelegramUser{ID: id, FirstName: fields["first_name"], Username: fields["username"]}, nil
}

// SignTelegram computes the widget hash for fields (without "hash"): an
// HMAC-SHA256 of the sorted key=value lines keyed by SHA-256 of the bot token.
func SignTelegram(fields map[string]string, botToken string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
