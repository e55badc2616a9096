package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	defaultSMTPPort    = 465
	defaultSMTPTimeout = 30 * time.Second
)

// EmailConfig is read from a "key: value" env file.
type EmailConfig struct {
	Host string
	Port int
	User string
	Pass string
	// SSL selects implicit TLS; otherwise STARTTLS is required.
	SSL bool
	To  string
}

func (c EmailConfig) Server() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Recipient defaults to the authenticating user.
func (c EmailConfig) Recipient() string {
	if strings.TrimSpace(c.To) != "" {
		return c.To
	}
	return c.User
}

var requiredEmailKeys = []string{"smtp_server", "authuser", "authpass"}

// LoadEmailConfig parses the env file. Blank lines and lines starting with
// '#' are skipped; a value is everything after the first ':'.
func LoadEmailConfig(path string) (EmailConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return EmailConfig{}, fmt.Errorf("config file not found: %s", path)
		}
		return EmailConfig{}, fmt.Errorf("error reading config: %w", err)
	}
	defer f.Close()

	kv := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		kv[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return EmailConfig{}, fmt.Errorf("error reading config: %w", err)
	}
	return emailConfigFromMap(kv)
}

func emailConfigFromMap(kv map[string]string) (EmailConfig, error) {
	var missing []string
	for _, k := range requiredEmailKeys {
		if _, ok := kv[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return EmailConfig{}, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	cfg := EmailConfig{
		User: kv["authuser"],
		Pass: kv["authpass"],
		To:   kv["to"],
		Port: defaultSMTPPort,
	}
	// "ecrypttion" is the key existing deployments use.
	enc := kv["ecrypttion"]
	if enc == "" {
		enc = kv["encryption"]
	}
	cfg.SSL = strings.EqualFold(enc, "ssl")

	host, port, hasPort := strings.Cut(kv["smtp_server"], ":")
	cfg.Host = strings.TrimSpace(host)
	if cfg.Host == "" {
		return EmailConfig{}, fmt.Errorf("smtp_server is empty")
	}
	if hasPort {
		p, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil || p <= 0 || p > 65535 {
			return EmailConfig{}, fmt.Errorf("invalid smtp port %q", port)
		}
		cfg.Port = p
	}
	return cfg, nil
}

// EmailNotifier sends alerts over SMTP with authentication.
type EmailNotifier struct {
	cfg     EmailConfig
	timeout time.Duration
	// starttls applies when cfg.SSL is false.
	starttls mail.TLSPolicy
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, timeout: defaultSMTPTimeout, starttls: mail.TLSMandatory}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Send(ctx context.Context, a Alert) error {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.User); err != nil {
		return fmt.Errorf("email from: %w", err)
	}
	if err := msg.To(n.cfg.Recipient()); err != nil {
		return fmt.Errorf("email to: %w", err)
	}
	msg.Subject(a.Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, a.Body)

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		// The mechanism is picked from the server's AUTH list during dial.
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(n.cfg.User),
		mail.WithPassword(n.cfg.Pass),
		mail.WithTimeout(n.timeout),
	}
	if n.cfg.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(n.starttls))
	}
	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("email client: %w", err)
	}

	// Authentication happens during dial.
	if err := client.DialWithContext(ctx); err != nil {
		return classifySMTPError(err)
	}
	defer client.Close()

	if err := client.Send(msg); err != nil {
		return classifySMTPError(err)
	}
	return nil
}

// classifySMTPError wraps err with ErrNotifyAuth or ErrNotifyTransport when
// the failure can be attributed to one of them.
func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return fmt.Errorf("%w: %w", ErrNotifyAuth, err)
		}
		return fmt.Errorf("%w: SMTP error: %w", ErrNotifyTransport, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "auth") {
		return fmt.Errorf("%w: %w", ErrNotifyAuth, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrNotifyTransport, err)
	}
	return fmt.Errorf("unexpected error: %w", err)
}
