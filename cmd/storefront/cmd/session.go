package cmd

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/client"
)

// cookieKey holds the API cookies between CLI runs, next to the session keys.
const cookieKey = "cliCookies"

var (
	serverURL          string
	statePath          string
	insecureSkipVerify bool
	loginEmail         string
	loginPassword      string
	loginRemember      bool
)

type savedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// cliSession wires a client.Manager to a bbolt state file and the API.
type cliSession struct {
	kv  *client.BoltStore
	api *client.APIClient
	mgr *client.Manager
}

type stdoutNotifier struct{}

func (stdoutNotifier) Notify(msg string) { fmt.Println(msg) }
func (stdoutNotifier) RedirectToLogin()  { fmt.Println("Run `storefront session login` to sign in again.") }

func openCLISession(ctx context.Context) (*cliSession, error) {
	if err := os.MkdirAll(filepath.Dir(statePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	kv, err := client.OpenBoltStore(statePath)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if insecureSkipVerify {
		httpClient.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	apiClient, err := client.NewAPIClient(serverURL, client.WithHTTPClient(httpClient), client.WithAPILogger(logger))
	if err != nil {
		kv.Close()
		return nil, err
	}

	s := &cliSession{kv: kv, api: apiClient}
	if raw, err := kv.Get(ctx, cookieKey); err == nil && raw != nil {
		var saved []savedCookie
		if json.Unmarshal(raw, &saved) == nil {
			cookies := make([]*http.Cookie, 0, len(saved))
			for _, c := range saved {
				cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
			}
			apiClient.SetCookies(cookies)
		}
	}

	// No refresher: the process is short-lived, so refresh is an explicit
	// subcommand rather than a timer.
	s.mgr = client.NewManager(client.NewStore(kv),
		client.WithLogouter(apiClient),
		client.WithNotifier(stdoutNotifier{}),
		client.WithNavigator(stdoutNotifier{}),
		client.WithLogger(logger),
		client.OnCleared(func(client.Reason) {
			_ = kv.Delete(context.Background(), cookieKey)
		}),
	)
	apiClient.SetObserver(s.mgr)
	return s, nil
}

// saveCookies persists the jar so the next run can reuse the token.
func (s *cliSession) saveCookies(ctx context.Context, expires time.Time) error {
	var saved []savedCookie
	for _, c := range s.api.Cookies() {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value, Expires: expires})
	}
	raw, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, map[string][]byte{cookieKey: raw})
}

// logout ends the session on the server and removes the stored token. The
// session was usually set by an earlier run, so the manager holds nothing in
// memory and its OnCleared hook does not fire.
func (s *cliSession) logout(ctx context.Context) error {
	if err := s.mgr.Logout(ctx); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, cookieKey); err != nil {
		return fmt.Errorf("failed to remove stored token: %w", err)
	}
	return nil
}

func (s *cliSession) close() {
	s.mgr.Stop()
	s.kv.Close()
}

func printSession(sess client.Session) {
	fmt.Printf("Signed in as %s <%s>\n", sess.DisplayName, sess.Email)
	if sess.IsAdmin {
		fmt.Println("Role:      admin")
	}
	fmt.Printf("Remember:  %v\n", sess.Remember)
	fmt.Printf("Expires:   %s (in %s)\n", sess.ExpiresAt.Local().Format(time.RFC1123), time.Until(sess.ExpiresAt).Round(time.Minute))
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage a client session against a running server",
}

var sessionLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openCLISession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		sess, err := s.api.Login(ctx, loginEmail, loginPassword, loginRemember)
		if err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				return errors.New("invalid email or password")
			}
			return err
		}
		if err := s.mgr.SetSession(ctx, sess, loginRemember); err != nil {
			return err
		}
		cur, _ := s.mgr.Session()
		if err := s.saveCookies(ctx, cur.ExpiresAt); err != nil {
			return err
		}
		printSession(cur)
		return nil
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openCLISession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		ok, err := s.mgr.Restore(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Not signed in.")
			return nil
		}
		sess, _ := s.mgr.Session()
		printSession(sess)
		return nil
	},
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the session token now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openCLISession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		ok, err := s.mgr.Restore(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("not signed in")
		}
		sess, err := s.api.RefreshToken(ctx)
		if err != nil {
			// A 401 has already cleared the session through the observer.
			return fmt.Errorf("refresh failed: %w", err)
		}
		if err := s.mgr.SetSession(ctx, sess, sess.Remember); err != nil {
			return err
		}
		cur, _ := s.mgr.Session()
		if err := s.saveCookies(ctx, cur.ExpiresAt); err != nil {
			return err
		}
		printSession(cur)
		return nil
	},
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openCLISession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "storefront", "session.db")
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLoginCmd, sessionStatusCmd, sessionRefreshCmd, sessionLogoutCmd)

	sessionCmd.PersistentFlags().StringVar(&serverURL, "server", "https://localhost:8080", "Storefront server URL")
	sessionCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "Session state file")
	sessionCmd.PersistentFlags().BoolVar(&insecureSkipVerify, "insecure-skip-verify", false, "Accept self-signed server certificates")

	sessionLoginCmd.Flags().StringVar(&loginEmail, "email", "", "E-mail address")
	sessionLoginCmd.Flags().StringVar(&loginPassword, "password", "", "Password")
	sessionLoginCmd.Flags().BoolVar(&loginRemember, "remember", false, "Keep the session for 30 days instead of 7")
	sessionLoginCmd.MarkFlagRequired("email")
	sessionLoginCmd.MarkFlagRequired("password")
}
