package main

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/emersion/go-mbox"
	"github.com/pepperpark/imapcopy/internal/imaputil"
	"github.com/pepperpark/imapcopy/internal/mapping"
	"github.com/pepperpark/imapcopy/internal/stats"
	"github.com/pepperpark/imapcopy/internal/syncer"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "imapcopy",
		Short: "Imapcopy - copy one IMAP account onto another",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var showVersion bool
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Print version and exit")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Printf("imapcopy %s", version)
			if commit != "" {
				fmt.Printf(" (%s)", commit)
			}
			if date != "" {
				fmt.Printf(" built %s", date)
			}
			fmt.Println()
			os.Exit(0)
		}
	}

	copyCmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy folders, mails, flags and dates from source to destination",
		RunE:  runCopy,
	}
	addCopyFlags(copyCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List folders on both servers without copying anything",
		RunE:  runList,
	}
	addCopyFlags(listCmd)

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a local mbox file into a destination folder",
		RunE:  runImport,
	}
	addCopyFlags(importCmd)

	rootCmd.AddCommand(copyCmd, listCmd, importCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type endpointOptions struct {
	server        string
	port          int
	user          string
	pass          string
	encryption    string
	encryptionSet bool
	sslNoVerify   bool
}

type copyOptions struct {
	source      endpointOptions
	destination endpointOptions

	configFile      string
	sourceRoot      string
	sourceMailboxes []string

	redirects         []string
	destinationRoot   string
	destinationMerge  bool
	noSubscribe       bool
	ignoreFolderFlags bool

	bufferSize    int64
	maxLineLength int
	maxMailSize   int64
	deniedFlags   string

	dryRun           bool
	incremental      bool
	skipEmptyFolders bool
	ignoreQuota      bool
	abortOnError     bool
	retries          int

	mboxPath     string
	importFolder string

	plain   bool
	verbose bool
}

func addCopyFlags(cmd *cobra.Command) {
	o := &copyOptions{}
	cmd.SilenceUsage = true

	f := cmd.Flags()
	f.StringVarP(&o.source.server, "source-server", "s", "", "hostname or IP of the source IMAP server")
	f.IntVar(&o.source.port, "source-port", 0, "source IMAP port (default from encryption)")
	f.StringVarP(&o.source.user, "source-user", "u", "", "source mailbox username")
	f.StringVarP(&o.source.pass, "source-pass", "p", "", "source mailbox password (prompted when omitted)")
	f.StringVarP(&o.source.encryption, "source-encryption", "e", "ssl", "source encryption (ssl/tls/starttls/none)")
	f.StringVar(&o.sourceRoot, "source-root", "", "source folder listing root (case sensitive)")
	f.StringArrayVar(&o.sourceMailboxes, "source-mailbox", nil, "only sync this top-level folder, repeatable (case sensitive, non-recursive)")

	f.StringVarP(&o.destination.server, "destination-server", "S", "", "hostname or IP of the destination IMAP server")
	f.IntVar(&o.destination.port, "destination-port", 0, "destination IMAP port (default from encryption)")
	f.StringVarP(&o.destination.user, "destination-user", "U", "", "destination mailbox username")
	f.StringVarP(&o.destination.pass, "destination-pass", "P", "", "destination mailbox password (prompted when omitted)")
	f.StringVarP(&o.destination.encryption, "destination-encryption", "E", "ssl", "destination encryption (ssl/tls/starttls/none)")

	f.StringArrayVarP(&o.redirects, "redirect", "r", nil, `redirect a folder: "source:destination", repeatable, trailing * matches a prefix`)
	f.StringVar(&o.destinationRoot, "destination-root", "", "place all copied folders under this destination folder")
	f.BoolVar(&o.destinationMerge, "destination-root-merge", false, "do not re-prefix folders already under the destination root")
	f.BoolVar(&o.noSubscribe, "destination-no-subscribe", false, "do not subscribe newly created destination folders")
	f.BoolVar(&o.ignoreFolderFlags, "ignore-folder-flags", false, "do not link special folders (Drafts, Trash, etc.) automatically")

	f.Int64VarP(&o.bufferSize, "buffer-size", "b", syncer.DefaultBufferSize, "max bytes of message bodies per fetch")
	f.IntVar(&o.maxLineLength, "max-line-length", 0, "skip mails containing a line longer than this many characters")
	f.Int64Var(&o.maxMailSize, "max-mail-size", 0, "skip mails larger than this many bytes")
	f.StringVar(&o.deniedFlags, "denied-flags", "", "comma-separated flags to strip from copied mails")

	f.BoolVarP(&o.dryRun, "dry-run", "d", false, "copy and create nothing, just feign")
	f.BoolVarP(&o.incremental, "incremental", "i", true, "skip mails already present at the destination")
	f.BoolVar(&o.skipEmptyFolders, "skip-empty-folders", false, "do not create empty folders")
	f.BoolVar(&o.ignoreQuota, "ignore-quota", false, "continue when the destination quota would be exceeded")
	f.BoolVar(&o.source.sslNoVerify, "ssl-no-verify", false, "do not verify TLS certificates")
	f.BoolVar(&o.abortOnError, "abort-on-error", false, "interrupt at the first mail transfer error")
	f.IntVar(&o.retries, "retries", syncer.DefaultRetries, "reconnect attempts for transient connection failures")
	f.StringVar(&o.configFile, "config", "", "YAML config file with source/destination blocks")

	f.StringVar(&o.mboxPath, "mbox", "", "local mbox file to import (import command)")
	f.StringVar(&o.importFolder, "destination-folder", "INBOX", "destination folder for imported mails")

	f.BoolVar(&o.plain, "plain", false, "plain progress output instead of the full-screen UI")
	f.BoolVar(&o.verbose, "verbose", false, "enable detailed per-folder logs")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		o.source.encryptionSet = f.Changed("source-encryption")
		o.destination.encryptionSet = f.Changed("destination-encryption")
		o.destination.sslNoVerify = o.source.sslNoVerify
		if o.configFile != "" {
			cfg, err := loadConfig(o.configFile)
			if err != nil {
				return err
			}
			applyConfig(o, cfg)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), ctxKey{}, o))
		return nil
	}
}

type ctxKey struct{}

func options(cmd *cobra.Command) *copyOptions {
	return cmd.Context().Value(ctxKey{}).(*copyOptions)
}

func endpoint(o endpointOptions) (imaputil.Endpoint, error) {
	enc, err := imaputil.ParseEncryption(o.encryption)
	if err != nil {
		return imaputil.Endpoint{}, err
	}
	return imaputil.Endpoint{
		Host:        o.server,
		Port:        o.port,
		Encryption:  enc,
		Username:    o.user,
		Password:    o.pass,
		InsecureTLS: o.sslNoVerify,
	}, nil
}

// promptPassword asks for a password on the terminal when one was not
// supplied via flag or config file.
func promptPassword(prompt string, pass *string) error {
	if *pass != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("%s not provided and stdin is not a terminal", prompt)
	}
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read %s: %w", prompt, err)
	}
	*pass = string(b)
	return nil
}

func openSessions(o *copyOptions) (src, dst *imaputil.Session, err error) {
	if o.source.server == "" || o.source.user == "" ||
		o.destination.server == "" || o.destination.user == "" {
		return nil, nil, fmt.Errorf("missing required flags: --source-server, --source-user, --destination-server, --destination-user")
	}
	if err := promptPassword("source password", &o.source.pass); err != nil {
		return nil, nil, err
	}
	if err := promptPassword("destination password", &o.destination.pass); err != nil {
		return nil, nil, err
	}

	srcEp, err := endpoint(o.source)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	dstEp, err := endpoint(o.destination)
	if err != nil {
		return nil, nil, fmt.Errorf("destination: %w", err)
	}

	fmt.Printf("Connecting source      : %s\n", srcEp.Addr())
	src, err = imaputil.Open(srcEp)
	if err != nil {
		return nil, nil, fmt.Errorf("connect source: %w", err)
	}
	fmt.Printf("Connecting destination : %s\n", dstEp.Addr())
	dst, err = imaputil.Open(dstEp)
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("connect destination: %w", err)
	}
	return src, dst, nil
}

func buildOptions(o *copyOptions) (syncer.Options, error) {
	var rules []mapping.Rule
	for _, r := range o.redirects {
		rule, err := mapping.ParseRule(r)
		if err != nil {
			return syncer.Options{}, err
		}
		rules = append(rules, rule)
	}
	var denied []string
	if o.deniedFlags != "" {
		denied = strings.Split(o.deniedFlags, ",")
	}
	return syncer.Options{
		DryRun:           o.dryRun,
		Incremental:      o.incremental,
		BufferSize:       o.bufferSize,
		MaxLineLength:    o.maxLineLength,
		MaxMailSize:      o.maxMailSize,
		DeniedFlags:      denied,
		SkipEmptyFolders: o.skipEmptyFolders,
		IgnoreQuota:      o.ignoreQuota,
		Subscribe:        !o.noSubscribe,
		AbortOnError:     o.abortOnError,
		Retries:          o.retries,
		Quiet:            !o.verbose,
		SourceRoot:       o.sourceRoot,
		SourceMailboxes:  o.sourceMailboxes,
		Mapping: mapping.Config{
			Rules:                rules,
			DestinationRoot:      o.destinationRoot,
			DestinationRootMerge: o.destinationMerge,
			LinkSpecialUse:       !o.ignoreFolderFlags,
		},
	}, nil
}

func runCopy(cmd *cobra.Command, args []string) error {
	o := options(cmd)

	src, dst, err := openSessions(o)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	opts, err := buildOptions(o)
	if err != nil {
		return err
	}

	st := stats.New()
	worker := syncer.New(src, dst, st, opts)

	// A user-requested stop is honored at the next message boundary.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var runErr error
	if o.plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		runErr = runPlain(ctx, worker)
	} else {
		runErr = runTUI(ctx, worker)
	}

	fmt.Println()
	fmt.Print(st.Summary(o.dryRun))
	if runErr != nil {
		return fmt.Errorf("run incomplete: %w", runErr)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	o := options(cmd)

	src, dst, err := openSessions(o)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	printTree := func(title string, s *imaputil.Session, root string) error {
		fmt.Printf("\n%s:\n", title)
		folders, err := s.ListFolders(root)
		if err != nil {
			return err
		}
		sort.Slice(folders, func(i, j int) bool {
			return strings.ToLower(folders[i].Path) < strings.ToLower(folders[j].Path)
		})
		for _, f := range folders {
			res, err := s.ScanFolder(ctx, f.Path)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d mails, %s)\n", f.Path, len(res.Records), stats.HumanSize(res.Size))
		}
		return nil
	}

	if err := printTree("Source", src, o.sourceRoot); err != nil {
		return err
	}
	if err := printTree("Destination", dst, ""); err != nil {
		return err
	}
	fmt.Println("\nEverything skipped! (list mode)")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	o := options(cmd)
	if o.mboxPath == "" {
		return fmt.Errorf("missing required flag: --mbox")
	}
	if o.destination.server == "" || o.destination.user == "" {
		return fmt.Errorf("missing required flags: --destination-server, --destination-user")
	}
	if err := promptPassword("destination password", &o.destination.pass); err != nil {
		return err
	}

	f, err := os.Open(o.mboxPath)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	total, err := countMboxMessages(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	dstEp, err := endpoint(o.destination)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	dst, err := imaputil.Open(dstEp)
	if err != nil {
		return fmt.Errorf("connect destination: %w", err)
	}
	defer dst.Close()

	if !o.dryRun {
		created, err := dst.EnsureFolder(o.importFolder)
		if err != nil {
			return err
		}
		if created && !o.noSubscribe {
			_ = dst.Subscribe(o.importFolder)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	st := stats.New()
	st.SourceMessages = total
	st.SourceFolders = 1

	progress := make(chan int, 128)
	errc := make(chan error, 1)
	go func() {
		defer close(progress)
		defer close(errc)
		r := mbox.NewReader(f)
		for {
			if err := ctx.Err(); err != nil {
				errc <- err
				return
			}
			mr, err := r.NextMessage()
			if err == io.EOF {
				errc <- nil
				return
			}
			if err != nil {
				errc <- fmt.Errorf("read mbox: %w", err)
				return
			}
			body, err := io.ReadAll(mr)
			if err != nil {
				errc <- fmt.Errorf("read message: %w", err)
				return
			}
			outcome := importMessage(dst, o, body)
			st.Record(outcome)
			progress <- 1
		}
	}()

	var runErr error
	if o.plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		runErr = runPlainCount("Importing", total, progress, errc)
	} else {
		runErr = runCountTUI("Importing", total, progress, errc)
	}

	fmt.Println()
	fmt.Print(st.Summary(o.dryRun))
	return runErr
}

// importMessage applies the same size and line filters as the copy path
// before appending a message read from the mbox file.
func importMessage(dst *imaputil.Session, o *copyOptions, body []byte) stats.Outcome {
	if len(body) == 0 {
		return stats.SkippedZeroSize
	}
	if o.maxMailSize > 0 && int64(len(body)) > o.maxMailSize {
		return stats.SkippedOversized
	}
	if o.maxLineLength > 0 {
		for _, line := range strings.Split(string(body), "\n") {
			if len(line) > o.maxLineLength {
				return stats.SkippedLineTooLong
			}
		}
	}

	date := time.Now()
	if msg, perr := mail.ReadMessage(strings.NewReader(string(body))); perr == nil {
		if dh := msg.Header.Get("Date"); dh != "" {
			if t, derr := mail.ParseDate(dh); derr == nil {
				date = t
			}
		}
	}

	if o.dryRun {
		return stats.Copied
	}
	if err := dst.Append(o.importFolder, nil, date, body); err != nil {
		return stats.Failed
	}
	return stats.Copied
}

func countMboxMessages(r io.Reader) (int, error) {
	mr := mbox.NewReader(r)
	count := 0
	for {
		m, err := mr.NextMessage()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return 0, fmt.Errorf("scan mbox: %w", err)
		}
		if _, err := io.Copy(io.Discard, m); err != nil {
			return 0, err
		}
		count++
	}
}
