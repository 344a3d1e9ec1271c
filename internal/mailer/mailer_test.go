package mailer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/solar-storefront/internal/config"
)

func TestNew_SelectsImplementation(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	_, isLog := New(config.MailConfig{}, log).(*LogMailer)
	assert.True(t, isLog)

	_, isSMTP := New(config.MailConfig{Host: "smtp.example.com", Port: 25}, log).(*SMTPMailer)
	assert.True(t, isSMTP)
}

func TestSMTPMailer_Send(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "smtp.example.com", Port: 2525, From: "shop@example.com"})

	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "c@example.com", "Your code", "123456"))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, []string{"c@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Your code\r\n")
	assert.Contains(t, string(gotMsg), "\r\n\r\n123456")
}

func TestSMTPMailer_RejectsHeaderInjection(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "smtp.example.com", Port: 25})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return nil }

	err := m.Send(context.Background(), "c@example.com\r\nBcc: x@example.com", "s", "b")
	assert.Error(t, err)
}

func TestSMTPMailer_WrapsError(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "smtp.example.com", Port: 25})
	boom := errors.New("boom")
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	assert.ErrorIs(t, m.Send(context.Background(), "c@example.com", "s", "b"), boom)
}

func TestLogMailer_Send(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, m.Send(context.Background(), "c@example.com", "Hi", "body"))
	assert.Contains(t, buf.String(), "c@example.com")
}
