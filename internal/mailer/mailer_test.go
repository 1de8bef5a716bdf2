package mailer

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetLink(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://blog.example/reset_password/abc", ResetLink("https://blog.example/", "abc"))
	assert.Equal(t, "http://localhost:8080/reset_password/abc", ResetLink("http://localhost:8080", "abc"))
}

func TestPasswordResetMessage(t *testing.T) {
	t.Parallel()
	msg := PasswordResetMessage("noreply@blog.example", "alice@x.io", "https://blog.example/reset_password/tok")
	assert.Equal(t, KindPasswordReset, msg.Kind)
	assert.Equal(t, "Password Reset Request", msg.Subject)
	assert.Equal(t, "alice@x.io", msg.To)
	assert.Contains(t, msg.Body, "https://blog.example/reset_password/tok")
}

func TestLogMailerSend(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	err := m.Send(context.Background(), PasswordResetMessage("noreply@blog.example", "alice@x.io", "link-here"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "alice@x.io")
	assert.Contains(t, buf.String(), "link-here")
}

func TestLogMailerRejectsBadAddress(t *testing.T) {
	t.Parallel()
	m := NewLogMailer(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	err := m.Send(context.Background(), Message{Kind: "test", From: "noreply@blog.example", To: "not an address"})
	assert.Error(t, err)
}

func TestNewSelectsTransport(t *testing.T) {
	t.Parallel()
	m, err := New(SMTPConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = New(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", UseTLS: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)
}
