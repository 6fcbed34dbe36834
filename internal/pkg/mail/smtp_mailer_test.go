package mail

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

type captured struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func capture(c *captured, err error) SendFunc {
	return func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		c.addr, c.auth, c.from, c.to, c.msg = addr, a, from, to, string(msg)
		return err
	}
}

func TestSend(t *testing.T) {
	var c captured
	m := NewMailer(config.SMTPConfig{Host: "smtp.local", Port: "2525", Username: "u", Password: "p", Sender: "billing@moodtunes.local"}, capture(&c, nil))

	require.NoError(t, m.Send("listener@example.com", "Your plan is active", "<p>hi</p>"))
	assert.Equal(t, "smtp.local:2525", c.addr)
	assert.NotNil(t, c.auth)
	assert.Equal(t, "billing@moodtunes.local", c.from)
	assert.Equal(t, []string{"listener@example.com"}, c.to)
	assert.Contains(t, c.msg, "Subject: Your plan is active\r\n")
	assert.Contains(t, c.msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>")
}

func TestSend_DefaultSenderNoAuth(t *testing.T) {
	var c captured
	m := NewMailer(config.SMTPConfig{Host: "smtp.local", Port: "25"}, capture(&c, nil))

	require.NoError(t, m.Send("a@example.com", "s", "b"))
	assert.Equal(t, "no-reply@localhost", c.from)
	assert.Nil(t, c.auth)
}

func TestSend_Rejects(t *testing.T) {
	var c captured
	m := NewMailer(config.SMTPConfig{Host: "smtp.local", Port: "25"}, capture(&c, nil))

	assert.Error(t, m.Send("", "s", "b"))
	assert.Error(t, m.Send("a@example.com\r\nBcc: x@example.com", "s", "b"))
	assert.Error(t, m.Send("a@example.com", "s\nBcc: x", "b"))
	assert.Empty(t, c.addr)

	disabled := NewMailer(config.SMTPConfig{}, capture(&c, nil))
	assert.False(t, disabled.Enabled())
	assert.Error(t, disabled.Send("a@example.com", "s", "b"))
}

func TestSend_PropagatesError(t *testing.T) {
	var c captured
	m := NewMailer(config.SMTPConfig{Host: "smtp.local", Port: "25"}, capture(&c, errors.New("421 busy")))
	assert.EqualError(t, m.Send("a@example.com", "s", "b"), "421 busy")
}
