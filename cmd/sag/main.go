package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sag-go/internal/app"
	"sag-go/internal/config"
	"sag-go/internal/diff"
	"sag-go/internal/sag"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file. Without one, sag runs with defaults and
// no catalog, which is enough for capture, recreate, info, verify and diff.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.NewConfig("", defaults["base_dir"])
		cfg.Database.Type = ""
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a SagApp. The caller must defer app.Close().
func newApp(operation string, parameters ...string) (*app.SagApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewSagApp(cfg, operation, strings.Join(parameters, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// argOrRemembered returns args[0], or the remembered value for key.
func argOrRemembered(a *app.SagApp, args []string, key, what string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if v := a.Remembered(key); v != "" {
		fmt.Fprintf(os.Stderr, "Using last %s: %s\n", what, v)
		return v, nil
	}
	return "", fmt.Errorf("%s is required", what)
}

func flagOrRemembered(a *app.SagApp, value, key, what string) (string, error) {
	return argOrRemembered(a, []string{value}, key, what)
}

var rootCmd = &cobra.Command{
	Use:          "sag",
	Short:        "Capture source trees into portable snapshot containers",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and the local catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.InitCatalog(cfg); err != nil {
			return fmt.Errorf("failed to initialize catalog: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Extensions: %s\n", strings.Join(cfg.Scan.Extensions, " "))
		fmt.Printf("Database:   %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vault",
}

var configVaultInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Verify the configured vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("vault init")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateVault(); err != nil {
			return fmt.Errorf("vault check failed: %w", err)
		}
		fmt.Println("Vault is ready.")
		return nil
	},
}

var configEncryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage archive encryption keys",
}

var configEncryptionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("encryption init")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readNewPassword("Archive key passphrase: ")
		if err != nil {
			return err
		}
		if err := a.SetupEncryption(passphrase); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		fmt.Println("Archive key pair created.")
		return nil
	},
}

// capture command
var captureCmd = &cobra.Command{
	Use:   "capture [DIR]",
	Short: "Scan a directory into a snapshot container",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		exts, _ := cmd.Flags().GetStringSlice("ext")
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp("capture", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		source, err := argOrRemembered(a, args, sag.SettingCaptureSource, "source directory")
		if err != nil {
			return err
		}
		output, err = flagOrRemembered(a, output, sag.SettingCaptureOutput, "output file")
		if err != nil {
			return err
		}

		var password string
		if encrypt {
			if password, err = readNewPassword("Container password: "); err != nil {
				return err
			}
		}

		result, err := a.Capture(app.CaptureRequest{
			Source:     source,
			Output:     output,
			Extensions: exts,
			Password:   password,
			Observer:   newProgressObserver(os.Stderr, verbose, "Encoding"),
		})
		if err != nil {
			a.Fail()
			return err
		}

		s := result.Snapshot
		fmt.Printf("Captured %d file(s) in %d director(ies) to %s\n", s.FileCount(), s.DirectoryCount(), output)
		for _, skipped := range result.Skipped {
			fmt.Printf("  skipped %s\n", skipped.Error())
		}
		return nil
	},
}

// recreate command
var recreateCmd = &cobra.Command{
	Use:   "recreate [FILE]",
	Short: "Recreate a directory tree from a snapshot container",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp("recreate", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		input, err := argOrRemembered(a, args, sag.SettingRecreateInput, "container file")
		if err != nil {
			return err
		}
		output, err = flagOrRemembered(a, output, sag.SettingRecreateOutput, "output directory")
		if err != nil {
			return err
		}

		snapshot, err := loadSnapshot(a, input)
		if err != nil {
			return err
		}
		result, err := a.Recreate(snapshot, input, output, newProgressObserver(os.Stderr, verbose, "Decoding"))
		if err != nil {
			a.Fail()
			return err
		}

		fmt.Printf("Recreated %d/%d file(s) and %d director(ies) in %s\n",
			result.FilesWritten, snapshot.FileCount(), result.DirectoriesCreated, output)
		for _, failed := range result.Failed {
			fmt.Printf("  failed %s\n", failed.Error())
		}
		if len(result.Failed) > 0 {
			a.Fail()
			return fmt.Errorf("%d item(s) could not be recreated", len(result.Failed))
		}
		return nil
	},
}

func printStatistics(st *sag.Statistics) {
	fmt.Printf("Root:        %s\n", st.RootPath)
	fmt.Printf("Created:     %s\n", st.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Directories: %d\n", st.DirectoryCount)
	fmt.Printf("Files:       %d\n", st.FileCount)
	fmt.Printf("Total size:  %d bytes\n", st.TotalSize)
	for _, ext := range st.SortedExtensions() {
		fmt.Printf("  %-16s %d\n", ext, st.Extensions[ext])
	}
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Show container details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("info")
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.Inspect(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("File:        %s\n", info.Path)
		fmt.Printf("Size:        %d bytes\n", info.Size)
		fmt.Printf("Encrypted:   %t\n", info.Encrypted)

		if info.Encrypted {
			if _, ok := os.LookupEnv(envPassword); !ok {
				return nil
			}
		}
		snapshot, err := loadSnapshot(a, args[0])
		if err != nil {
			return err
		}
		st := snapshot.Statistics()
		printStatistics(&st)
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Fully load and validate a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("verify")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := verifySnapshot(a, args[0])
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		printStatistics(stats)
		fmt.Println("OK")
		return nil
	},
}

// diff command
var diffCmd = &cobra.Command{
	Use:   "diff OLD NEW",
	Short: "Compare two containers",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, _ := cmd.Flags().GetBool("patch")
		context, _ := cmd.Flags().GetInt("context")

		a, err := newApp("diff")
		if err != nil {
			return err
		}
		defer a.Close()

		oldSnap, err := loadSnapshot(a, args[0])
		if err != nil {
			return err
		}
		newSnap, err := loadSnapshot(a, args[1])
		if err != nil {
			return err
		}

		report := diff.Compare(oldSnap, newSnap)
		for _, d := range report.DirsAdded {
			fmt.Printf("+ %s/\n", d)
		}
		for _, d := range report.DirsRemoved {
			fmt.Printf("- %s/\n", d)
		}
		for _, p := range report.Added {
			fmt.Printf("A %s\n", p)
		}
		for _, p := range report.Removed {
			fmt.Printf("D %s\n", p)
		}
		for _, p := range report.Modified {
			fmt.Printf("M %s\n", p)
		}
		fmt.Println(report.String())

		if patch {
			for _, p := range report.Modified {
				fmt.Print(diff.Patch(oldSnap.FileByPath(p), newSnap.FileByPath(p), context))
			}
			for _, p := range report.Added {
				fmt.Print(diff.Patch(nil, newSnap.FileByPath(p), context))
			}
			for _, p := range report.Removed {
				fmt.Print(diff.Patch(oldSnap.FileByPath(p), nil, context))
			}
		}
		return nil
	},
}

// ext command
var extCmd = &cobra.Command{
	Use:   "ext",
	Short: "Manage the remembered extension list",
}

func printExtensions(exts []string, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(exts, " "))
	return nil
}

var extListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the extension list used by capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ext list")
		if err != nil {
			return err
		}
		defer a.Close()
		return printExtensions(a.Extensions())
	},
}

var extAddCmd = &cobra.Command{
	Use:   "add EXT...",
	Short: "Add extensions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ext add", args...)
		if err != nil {
			return err
		}
		defer a.Close()
		return printExtensions(a.AddExtensions(args...))
	},
}

var extRemoveCmd = &cobra.Command{
	Use:   "remove EXT...",
	Short: "Remove extensions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ext remove", args...)
		if err != nil {
			return err
		}
		defer a.Close()
		return printExtensions(a.RemoveExtensions(args...))
	},
}

var extResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the remembered list and use the configured defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ext reset")
		if err != nil {
			return err
		}
		defer a.Close()
		return printExtensions(a.ResetExtensions())
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Store containers in the vault",
}

var archivePushCmd = &cobra.Command{
	Use:   "push FILE",
	Short: "Upload a container to the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp("archive push", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		archive, err := a.PushArchive(args[0], name)
		if err != nil {
			a.Fail()
			return err
		}
		fmt.Printf("Archived %s as %q (%d bytes, %s)\n", args[0], archive.Name, archive.Size, archive.Checksum[:12])
		return nil
	},
}

var archivePullCmd = &cobra.Command{
	Use:   "pull NAME",
	Short: "Download a container from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("archive pull", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		if output == "" {
			output = filepath.Base(args[0])
		}

		needs, err := a.ArchiveNeedsPassphrase(args[0])
		if err != nil {
			return err
		}
		var passphrase string
		if needs {
			if passphrase, err = readPassword("Archive key passphrase: "); err != nil {
				return err
			}
		}

		archive, err := a.PullArchive(args[0], output, passphrase)
		if err != nil {
			a.Fail()
			return err
		}
		fmt.Printf("Restored %q to %s (%d bytes)\n", archive.Name, output, archive.Size)
		return nil
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("archive list")
		if err != nil {
			return err
		}
		defer a.Close()

		archives, err := a.ListArchives()
		if err != nil {
			return err
		}
		if len(archives) == 0 {
			fmt.Println("No archives.")
			return nil
		}

		for _, ar := range archives {
			flags := ""
			if ar.PasswordProtected {
				flags += " [password]"
			}
			if ar.VaultEncrypted {
				flags += " [encrypted]"
			}
			fmt.Printf("%s  %s  %10d  %s%s\n",
				ar.Checksum[:12],
				ar.ArchivedAt.Format("2006-01-02 15:04:05"),
				ar.Size,
				ar.Name,
				flags,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultInitCmd)
	configCmd.AddCommand(configEncryptionCmd)
	configEncryptionCmd.AddCommand(configEncryptionInitCmd)

	// snapshot commands
	captureCmd.Flags().StringP("output", "o", "", "Container file to write")
	captureCmd.Flags().StringSliceP("ext", "e", nil, "Extensions to capture (e.g. .txt,.py)")
	captureCmd.Flags().Bool("encrypt", false, "Protect the container with a password")
	captureCmd.Flags().BoolP("verbose", "v", false, "Log every file")
	recreateCmd.Flags().StringP("output", "o", "", "Directory to recreate into")
	recreateCmd.Flags().BoolP("verbose", "v", false, "Log every file")
	diffCmd.Flags().Bool("patch", false, "Show unified diffs of changed files")
	diffCmd.Flags().IntP("context", "U", diff.DefaultContext, "Lines of context in patches")

	// ext subcommands
	extCmd.AddCommand(extListCmd)
	extCmd.AddCommand(extAddCmd)
	extCmd.AddCommand(extRemoveCmd)
	extCmd.AddCommand(extResetCmd)

	// archive subcommands
	archiveCmd.AddCommand(archivePushCmd)
	archivePushCmd.Flags().String("name", "", "Archive name (default: file name)")
	archiveCmd.AddCommand(archivePullCmd)
	archivePullCmd.Flags().StringP("output", "o", "", "File to write (default: archive name)")
	archiveCmd.AddCommand(archiveListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(recreateCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(extCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
