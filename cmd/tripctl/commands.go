package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pkordes/travelogue/internal/app"
	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/config"
)

// env is what every command needs: the loaded config and a way to open
// the backends it describes.
type env struct {
	cfg  config.Config
	open func(ctx context.Context) (*app.App, error)
}

// withApp opens the backends for the duration of fn.
func (e *env) withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := e.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:          "tripctl",
		Short:        "Operate a Travelogue deployment",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(e),
		newExportCmd(e),
		newImportCmd(e),
		newBackupCmd(e),
		newWhitelistCmd(e),
		newTokenCmd(e),
	)
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured document store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd, func(a *app.App) error {
				return a.Migrate(cmd.Context())
			})
		},
	}
}

func newExportCmd(e *env) *cobra.Command {
	var user, out, trip string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's trips, or a single trip, as a backup package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" && trip == "" {
				return fmt.Errorf("one of --user or --trip is required")
			}
			return e.withApp(cmd, func(a *app.App) error {
				var pkg any
				var err error
				if trip != "" {
					pkg, err = a.Backups.ExportTrip(cmd.Context(), trip)
				} else {
					pkg, err = a.Backups.ExportAll(cmd.Context(), user)
				}
				if err != nil {
					return err
				}
				return writeOutput(cmd, out, pkg)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "owner id (email) whose trips to export")
	cmd.Flags().StringVar(&trip, "trip", "", "export only this trip id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.MarkFlagsMutuallyExclusive("user", "trip")
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	var user, in string
	var single bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a user's data with a backup package, or add a single exported trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, closeFn, err := openInput(cmd, in)
			if err != nil {
				return err
			}
			defer closeFn()
			return e.withApp(cmd, func(a *app.App) error {
				if single {
					id, err := a.Backups.ImportTrip(cmd.Context(), user, r)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				}
				return a.Backups.ImportAll(cmd.Context(), user, r)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "owner id (email) that receives the data")
	cmd.Flags().StringVarP(&in, "in", "i", "", "input file (default stdin)")
	cmd.Flags().BoolVar(&single, "trip", false, "input is a single-trip package; add it instead of replacing")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newBackupCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage cloud backups in the configured blob store",
	}
	var user string
	cmd.PersistentFlags().StringVar(&user, "user", "", "owner id (email) the backups belong to")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Export the user's data into a new cloud backup",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return e.withApp(cmd, func(a *app.App) error {
					b, err := a.Backups.CreateCloudBackup(cmd.Context(), user)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), b.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the user's cloud backups, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return e.withApp(cmd, func(a *app.App) error {
					backups, err := a.Backups.ListCloudBackups(cmd.Context(), user)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tCREATED\tSIZE")
					for _, b := range backups {
						fmt.Fprintf(tw, "%s\t%s\t%d\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Size)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "restore <backup-id>",
			Short: "Replace the user's data with a cloud backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withApp(cmd, func(a *app.App) error {
					return a.Backups.RestoreCloudBackup(cmd.Context(), user, args[0])
				})
			},
		},
	)
	return cmd
}

func newWhitelistCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Grant or revoke API access by email",
	}
	var admin bool
	allow := &cobra.Command{
		Use:   "allow <email>",
		Short: "Allow an email to use the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app.App) error {
				return a.Whitelist.Allow(cmd.Context(), args[0], admin)
			})
		},
	}
	allow.Flags().BoolVar(&admin, "admin", false, "grant admin rights")

	revoke := &cobra.Command{
		Use:   "revoke <email>",
		Short: "Remove an email from the whitelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app.App) error {
				return a.Whitelist.Revoke(cmd.Context(), args[0])
			})
		},
	}
	cmd.AddCommand(allow, revoke)
	return cmd
}

func newTokenCmd(e *env) *cobra.Command {
	var uid, email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := auth.NewVerifier(e.cfg.JWTSecret, e.cfg.JWTIssuer, e.cfg.JWTTTL)
			if err != nil {
				return err
			}
			token, err := v.Issue(uid, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "user id (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

// writeOutput encodes v as indented JSON to path, or to stdout when path
// is empty.
func writeOutput(cmd *cobra.Command, path string, v any) error {
	w := cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openInput returns path for reading, or stdin when path is empty.
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
