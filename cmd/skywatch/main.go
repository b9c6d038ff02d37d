// Command skywatch is a small Bluesky client: log in to a PDS, publish and
// read posts, resolve handles, and follow the Jetstream firehose. Sessions
// and stream cursors persist in a local SQLite database so tokens are
// reused and refreshed across invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/skywatch-go/skywatch/atproto"
	"github.com/skywatch-go/skywatch/bsky"
	"github.com/skywatch-go/skywatch/jetstream"
	"github.com/skywatch-go/skywatch/lexicon"
	"github.com/skywatch-go/skywatch/sqlitestore"
	"github.com/skywatch-go/skywatch/syntax"
	"github.com/skywatch-go/skywatch/xrpc"
)

// sessionName is the slot the CLI stores its session under.
const sessionName = "default"

const usageText = `skywatch is a Bluesky command line client.

Usage:

  skywatch <command> [flags]

Commands:

  login      authenticate against a PDS and store the session
  logout     delete the stored session
  post       publish a post
  timeline   print the latest posts from the home timeline
  resolve    resolve a handle to its DID
  stream     follow the Jetstream firehose and log events

Environment:

  BLUESKY_PDS           PDS base URL (default ` + xrpc.DefaultHost + `)
  BLUESKY_HANDLE        handle used by login
  BLUESKY_APP_PASSWORD  app password used by login
  SKYWATCH_DB           database path (default ~/.skywatch/skywatch.db)

Run "skywatch <command> --help" for the flags of a command.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return runLogin(rest)
	case "logout":
		return runLogout(rest)
	case "post":
		return runPost(rest)
	case "timeline":
		return runTimeline(rest)
	case "resolve":
		return runResolve(rest)
	case "stream":
		return runStream(rest)
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return nil
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runLogin(args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	pds := fs.String("pds", envOrDefault("BLUESKY_PDS", xrpc.DefaultHost), "PDS base URL")
	handle := fs.String("handle", envOrDefault("BLUESKY_HANDLE", ""), "account handle or DID")
	password := fs.String("password", envOrDefault("BLUESKY_APP_PASSWORD", ""), "app password")
	dbPath := fs.String("db", defaultDBPath(), "database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *handle == "" || *password == "" {
		return fmt.Errorf("--handle and --password are required (or set BLUESKY_HANDLE and BLUESKY_APP_PASSWORD)")
	}

	ctx := context.Background()
	client := xrpc.NewClient(*pds)

	sess, err := atproto.CreateSession(ctx, client, *handle, *password)
	if err != nil {
		return err
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveSession(ctx, sessionName, sess); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (%s)\n", sess.Handle, sess.DID)
	if sess.ServiceEndpoint != "" && sess.ServiceEndpoint != *pds {
		fmt.Printf("Requests will route to %s\n", sess.ServiceEndpoint)
	}
	return nil
}

func runLogout(args []string) error {
	fs := pflag.NewFlagSet("logout", pflag.ContinueOnError)
	pds := fs.String("pds", envOrDefault("BLUESKY_PDS", xrpc.DefaultHost), "PDS base URL")
	dbPath := fs.String("db", defaultDBPath(), "database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.LoadSession(ctx, sessionName)
	if errors.Is(err, sqlitestore.ErrSessionNotFound) {
		fmt.Println("Not logged in")
		return nil
	}
	if err != nil {
		return err
	}

	// Revoke server-side first; the local copy goes away regardless.
	if err := atproto.DeleteSession(ctx, xrpc.NewClient(*pds), sess); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not revoke session: %v\n", err)
	}
	if err := store.DeleteSession(ctx, sessionName); err != nil {
		return err
	}

	fmt.Printf("Logged out %s\n", sess.Handle)
	return nil
}

func runPost(args []string) error {
	fs := pflag.NewFlagSet("post", pflag.ContinueOnError)
	pds := fs.String("pds", envOrDefault("BLUESKY_PDS", xrpc.DefaultHost), "PDS base URL")
	dbPath := fs.String("db", defaultDBPath(), "database path")
	text := fs.String("text", "", "post text (defaults to the remaining arguments)")
	langs := fs.StringSlice("lang", nil, "post language tags (e.g. en, de)")
	reply := fs.String("reply", "", "AT-URI of the post to reply to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body := *text
	if body == "" {
		body = strings.Join(fs.Args(), " ")
	}
	if body == "" {
		return fmt.Errorf("nothing to post, pass --text or trailing arguments")
	}

	ctx := context.Background()
	client := xrpc.NewClient(*pds)

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := loadSession(ctx, store, client)
	if err != nil {
		return err
	}

	post := bsky.FeedPost{
		Text:      body,
		Languages: *langs,
	}
	if *reply != "" {
		replyRef, err := resolveReply(ctx, client, sess, *reply)
		if err != nil {
			return err
		}
		post.Reply = replyRef
	}

	ref, err := bsky.CreatePost(ctx, client, sess, post)
	if err != nil {
		return err
	}

	fmt.Printf("Posted %s\n", ref.URI)
	return nil
}

// resolveReply fetches the parent post so the reply carries the correct
// root reference.
func resolveReply(ctx context.Context, client *xrpc.Client, sess *xrpc.Session, uri string) (*bsky.ReplyRef, error) {
	parsed, err := syntax.ParseATURI(uri)
	if err != nil {
		return nil, err
	}
	rec, err := atproto.GetRecord(ctx, client, sess, parsed.Authority(), parsed.Collection(), parsed.RecordKey(), "")
	if err != nil {
		return nil, fmt.Errorf("fetch reply parent: %w", err)
	}
	var parent bsky.FeedPost
	if err := rec.Decode(&parent); err != nil {
		return nil, fmt.Errorf("decode reply parent: %w", err)
	}
	return bsky.ReplyTo(atproto.StrongRef{URI: rec.URI, CID: rec.CID}, &parent), nil
}

func runTimeline(args []string) error {
	fs := pflag.NewFlagSet("timeline", pflag.ContinueOnError)
	pds := fs.String("pds", envOrDefault("BLUESKY_PDS", xrpc.DefaultHost), "PDS base URL")
	dbPath := fs.String("db", defaultDBPath(), "database path")
	limit := fs.Int("limit", 20, "number of posts to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	client := xrpc.NewClient(*pds)

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := loadSession(ctx, store, client)
	if err != nil {
		return err
	}

	timeline, err := bsky.GetTimeline(ctx, client, sess, "", "", *limit)
	if err != nil {
		return err
	}

	for _, item := range timeline.Feed {
		printFeedItem(item)
	}
	return nil
}

func printFeedItem(item bsky.FeedViewPost) {
	post := item.Post
	fmt.Printf("%s  @%s", post.IndexedAt.Time.Local().Format("2006-01-02 15:04"), post.Author.Handle)
	if item.Reason != nil && item.Reason.Repost != nil {
		fmt.Printf("  (reposted by @%s)", item.Reason.Repost.By.Handle)
	}
	fmt.Println()
	if post.Record.Text != "" {
		for _, line := range strings.Split(post.Record.Text, "\n") {
			fmt.Printf("    %s\n", line)
		}
	}
	fmt.Printf("    %d replies, %d reposts, %d likes\n\n", post.ReplyCount, post.RepostCount, post.LikeCount)
}

func runResolve(args []string) error {
	fs := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	pds := fs.String("pds", envOrDefault("BLUESKY_PDS", xrpc.DefaultHost), "PDS base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: skywatch resolve <handle>")
	}

	did, err := atproto.ResolveHandle(context.Background(), xrpc.NewClient(*pds), fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Println(did)
	return nil
}

func runStream(args []string) error {
	fs := pflag.NewFlagSet("stream", pflag.ContinueOnError)
	streamURL := fs.String("url", jetstream.DefaultURL, "Jetstream websocket URL")
	collections := fs.StringSlice("collection", []string{bsky.FeedPostType}, "collection NSIDs to subscribe to")
	dids := fs.StringSlice("did", nil, "restrict the stream to these DIDs")
	dbPath := fs.String("db", defaultDBPath(), "database path (stores the resume cursor)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sub, err := jetstream.NewSubscriber(jetstream.Config{
		URL:               *streamURL,
		WantedCollections: *collections,
		WantedDIDs:        *dids,
		Cursors:           store,
		Logger:            logger,
	}, func(ctx context.Context, evt *jetstream.Event) error {
		logEvent(logger, evt)
		return nil
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("stream stopped")
	return nil
}

func logEvent(logger *slog.Logger, evt *jetstream.Event) {
	switch {
	case evt.Kind == jetstream.KindCommit && evt.Commit != nil:
		attrs := []any{
			"operation", evt.Commit.Operation,
			"collection", evt.Commit.Collection,
			"uri", evt.URI(),
		}
		if evt.Commit.Collection == bsky.FeedPostType && evt.Commit.Operation != jetstream.OpDelete {
			var post bsky.FeedPost
			if err := evt.Commit.DecodeRecord(&post); err == nil {
				attrs = append(attrs, "text", lexicon.TruncateGraphemes(post.Text, 100))
			}
		}
		logger.Info("commit", attrs...)
	case evt.Kind == jetstream.KindIdentity && evt.Identity != nil:
		logger.Info("identity", "did", evt.DID, "handle", evt.Identity.Handle)
	case evt.Kind == jetstream.KindAccount && evt.Account != nil:
		logger.Info("account", "did", evt.DID, "active", evt.Account.Active, "status", evt.Account.Status)
	}
}

// loadSession returns the stored session, refreshing and re-saving it first
// when the access token is about to expire.
func loadSession(ctx context.Context, store *sqlitestore.Store, client *xrpc.Client) (*xrpc.Session, error) {
	sess, err := store.LoadSession(ctx, sessionName)
	if errors.Is(err, sqlitestore.ErrSessionNotFound) {
		return nil, fmt.Errorf("not logged in, run \"skywatch login\" first")
	}
	if err != nil {
		return nil, err
	}

	if atproto.NeedsRefresh(sess, 5*time.Minute) {
		refreshed, err := atproto.RefreshSession(ctx, client, sess)
		if err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		if err := store.SaveSession(ctx, sessionName, refreshed); err != nil {
			return nil, fmt.Errorf("store refreshed session: %w", err)
		}
		sess = refreshed
	}
	return sess, nil
}

func openStore(path string) (*sqlitestore.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return sqlitestore.Open(path)
}

func defaultDBPath() string {
	if v := os.Getenv("SKYWATCH_DB"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "skywatch.db"
	}
	return filepath.Join(home, ".skywatch", "skywatch.db")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
