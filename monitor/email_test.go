package monitor

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadEmailConfig_SSLDefaults(t *testing.T) {
	p := writeEnv(t, `# mail settings
smtp_server: smtp.example.com
authuser: raid@example.com
authpass: p:a:ss
ecrypttion: SSL
`)
	cfg, err := LoadEmailConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", cfg.Host)
	assert.Equal(t, 465, cfg.Port)
	assert.Equal(t, "p:a:ss", cfg.Pass)
	assert.True(t, cfg.SSL)
	assert.Equal(t, "raid@example.com", cfg.Recipient())
	assert.Equal(t, "smtp.example.com:465", cfg.Server())
}

func TestLoadEmailConfig_StartTLSWithPortAndRecipient(t *testing.T) {
	p := writeEnv(t, "smtp_server: mail.example.org:587\nauthuser: a@example.org\nauthpass: x\nencryption: starttls\nto: ops@example.org\n")
	cfg, err := LoadEmailConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 587, cfg.Port)
	assert.False(t, cfg.SSL)
	assert.Equal(t, "ops@example.org", cfg.Recipient())
}

func TestLoadEmailConfig_MissingKeys(t *testing.T) {
	p := writeEnv(t, "smtp_server: smtp.example.com\n")
	_, err := LoadEmailConfig(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required config: authuser, authpass")
}

func TestLoadEmailConfig_BadPortAndMissingFile(t *testing.T) {
	_, err := LoadEmailConfig(writeEnv(t, "smtp_server: h:port\nauthuser: a\nauthpass: b\n"))
	require.Error(t, err)

	_, err = LoadEmailConfig(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

// serveSMTPCramMD5 accepts one SMTP session that offers CRAM-MD5 as its only
// AUTH mechanism. The AUTH command line and "DATA" are reported on the
// returned channel.
func serveSMTPCramMD5(t *testing.T, user, pass string) (int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	seen := make(chan string, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		reply := func(line string) { _ = tp.PrintfLine("%s", line) }

		reply("220 relay.local ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb, arg, _ := strings.Cut(line, " ")
			switch strings.ToUpper(verb) {
			case "EHLO", "HELO":
				reply("250-relay.local")
				reply("250-8BITMIME")
				reply("250 AUTH CRAM-MD5")
			case "AUTH":
				seen <- "AUTH " + arg
				challenge := "<1896.697170952@relay.local>"
				reply("334 " + base64.StdEncoding.EncodeToString([]byte(challenge)))
				resp, err := tp.ReadLine()
				if err != nil {
					return
				}
				got, _ := base64.StdEncoding.DecodeString(resp)
				mac := hmac.New(md5.New, []byte(pass))
				mac.Write([]byte(challenge))
				if string(got) == fmt.Sprintf("%s %x", user, mac.Sum(nil)) {
					reply("235 2.7.0 Authentication successful")
				} else {
					reply("535 5.7.8 Authentication credentials invalid")
				}
			case "DATA":
				reply("354 End data with <CR><LF>.<CR><LF>")
				if _, err := tp.ReadDotLines(); err != nil {
					return
				}
				seen <- "DATA"
				reply("250 2.0.0 queued")
			case "QUIT":
				reply("221 2.0.0 bye")
				return
			default:
				reply("250 2.0.0 ok")
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, seen
}

func TestEmailNotifier_UsesMechanismOfferedByServer(t *testing.T) {
	port, seen := serveSMTPCramMD5(t, "raid@example.com", "s3cret")
	n := NewEmailNotifier(EmailConfig{Host: "127.0.0.1", Port: port, User: "raid@example.com", Pass: "s3cret"})
	n.starttls = mail.NoTLS
	n.timeout = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, n.Send(ctx, disconnectAlert("/dev/sde", time.Now())))
	assert.Equal(t, "AUTH CRAM-MD5", <-seen)
	assert.Equal(t, "DATA", <-seen)
}

func TestClassifySMTPError(t *testing.T) {
	auth := classifySMTPError(&textproto.Error{Code: 535, Msg: "5.7.8 Username and Password not accepted"})
	assert.ErrorIs(t, auth, ErrNotifyAuth)

	smtp := classifySMTPError(fmt.Errorf("send: %w", &textproto.Error{Code: 550, Msg: "mailbox unavailable"}))
	assert.ErrorIs(t, smtp, ErrNotifyTransport)
	assert.NotErrorIs(t, smtp, ErrNotifyAuth)

	byText := classifySMTPError(errors.New("smtp AUTH PLAIN rejected"))
	assert.ErrorIs(t, byText, ErrNotifyAuth)

	dial := classifySMTPError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	assert.ErrorIs(t, dial, ErrNotifyTransport)

	timeout := classifySMTPError(fmt.Errorf("dial: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, timeout, ErrNotifyTransport)

	other := classifySMTPError(errors.New("boom"))
	assert.NotErrorIs(t, other, ErrNotifyAuth)
	assert.NotErrorIs(t, other, ErrNotifyTransport)
	assert.True(t, strings.HasPrefix(other.Error(), "unexpected error"))
}

func TestAlertTexts(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.Local)

	d := disconnectAlert("/dev/sde", at)
	assert.Equal(t, "RAID Device Disconnected: /dev/sde", d.Subject)
	assert.Equal(t, LevelCritical, d.Level)
	assert.Contains(t, d.Body, "2026-02-03 04:05:06")

	r := reconnectAlert("/dev/sde", at)
	assert.Equal(t, "RAID Device Reconnected: /dev/sde", r.Subject)
	assert.Equal(t, LevelInfo, r.Level)

	prev := &PersistedState{Flags: FlagRecord{Health: "07", RebuildStatus: "00", RebuildPhase: "00"}, SourceFile: "degraded_idle_a.txt"}
	cur := &FlagRecord{Health: "0f", RebuildStatus: "01", RebuildPhase: "00"}
	s := stateChangeAlert("/dev/sde", prev, cur, "operational_b.txt", Compare(&prev.Flags, cur), at)
	assert.Equal(t, "RAID State Changed: DEGRADED + IDLE -> OPERATIONAL + REBUILDING_PHASE_1", s.Subject)
	assert.Equal(t, LevelWarning, s.Level)
	assert.Contains(t, s.Body, "0x1F0: 07 -> 0f, 0x1F5: 00 -> 01")
	assert.Contains(t, s.Body, "degraded_idle_a.txt")
	assert.Contains(t, s.Body, "operational_b.txt")

	tm := TestAlert("", EmailConfig{Host: "h", Port: 25, User: "u@x"}, at)
	assert.Equal(t, AlertTest, tm.Kind)
	assert.Contains(t, tm.Body, "SMTP Server: h:25")
}
