package sink

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	date := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	msg := string(buildMessage("bot@example.com", []string{"a@example.com", "b@example.com"},
		"KPI alert\r\nBcc: evil@example.com", "line one\nline two", date))

	assert.Contains(t, msg, "From: bot@example.com\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: KPI alert  Bcc: evil@example.com\r\n")
	assert.NotContains(t, msg, "\r\nBcc:")
	assert.Contains(t, msg, "Date: Fri, 15 Mar 2024 10:30:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two"))
}

func TestSMTPMailer_Send(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com:587", "user", "secret", "bot@example.com")
	require.NotNil(t, m.auth)

	var gotAddr, gotFrom string
	var gotTo []string
	m.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}

	require.NoError(t, m.Send(context.Background(), []string{"ops@example.com"}, "Hi", "Body"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
}

func TestSMTPMailer_Send_Errors(t *testing.T) {
	m := NewSMTPMailer("localhost:25", "", "", "bot@example.com")
	assert.Nil(t, m.auth)
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	assert.Error(t, m.Send(context.Background(), nil, "s", "b"))
	assert.ErrorContains(t, m.Send(context.Background(), []string{"a@b.c"}, "s", "b"), "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, []string{"a@b.c"}, "s", "b"), context.Canceled)
}
