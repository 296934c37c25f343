package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitewalk/internal/config"
	"sitewalk/internal/db"
	"sitewalk/internal/domain"
	"sitewalk/internal/engine"
	"sitewalk/internal/repo"
	"sitewalk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sitewalk",
	Short: "Sitewalk CLI",
	Long: `Sitewalk tracks construction site inspections against milestone checklists.
Administrators define milestones and checklist items per project; site
engineers record pass/fail/na results with photo evidence and submit them;
project managers review. Submissions are gated on completeness and photo
requirements, and an engineer can hold at most one submitted inspection
per milestone at a time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SITEWALK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("actor-role", "admin", "actor role (site_engineer, client, project_manager, admin, super_admin)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-role", rootCmd.PersistentFlags().Lookup("actor-role"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(inspectionCmd())
	rootCmd.AddCommand(mediaCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func cliActor() (domain.Actor, error) {
	role := domain.Role(viper.GetString("actor-role"))
	if !role.IsValid() {
		return domain.Actor{}, fmt.Errorf("unknown role %q", viper.GetString("actor-role"))
	}
	return domain.Actor{ID: viper.GetString("actor-id"), Role: role}, nil
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, id, name, desc, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func memberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage project members"}
	mem.AddCommand(memberAddCmd())
	mem.AddCommand(memberRemoveCmd())
	mem.AddCommand(memberListCmd())
	return mem
}

func memberAddCmd() *cobra.Command {
	var projectID, actorID, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a project member",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddMember(ctx, projectID, actorID, domain.Role(role), actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&actorID, "member-id", "", "member actor id")
	cmd.Flags().StringVar(&role, "role", "", "member role")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("member-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	var projectID, actorID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a project member",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveMember(ctx, projectID, actorID, actor)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&actorID, "member-id", "", "member actor id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("member-id")
	return cmd
}

func memberListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMembers(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Role", "Added"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ActorID, m.Role, m.AddedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func milestoneCmd() *cobra.Command {
	ms := &cobra.Command{Use: "milestone", Short: "Manage milestones"}
	ms.AddCommand(milestoneCreateCmd())
	ms.AddCommand(milestoneListCmd())
	ms.AddCommand(milestoneUpdateCmd())
	ms.AddCommand(milestoneDeleteCmd())
	return ms
}

func milestoneCreateCmd() *cobra.Command {
	var projectID, name, desc string
	var order int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create milestone",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMilestone(ctx, projectID, engine.MilestoneCreateOptions{
					Name:        name,
					Description: desc,
					Order:       order,
				}, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "milestone name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().IntVar(&order, "order", 0, "display order")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func milestoneListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List milestones with checklist items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMilestones(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Order", "Active", "Items"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Order, m.IsActive, len(m.Items)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func milestoneUpdateCmd() *cobra.Command {
	var name, desc string
	var order int
	var active bool
	cmd := &cobra.Command{
		Use:   "update <milestone-id>",
		Short: "Update milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			var opts engine.MilestoneUpdateOptions
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &desc
			}
			if cmd.Flags().Changed("order") {
				opts.Order = &order
			}
			if cmd.Flags().Changed("active") {
				opts.IsActive = &active
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateMilestone(ctx, args[0], opts, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "milestone name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().IntVar(&order, "order", 0, "display order")
	cmd.Flags().BoolVar(&active, "active", true, "accepting inspections")
	return cmd
}

func milestoneDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <milestone-id>",
		Short: "Delete milestone and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteMilestone(ctx, args[0], actor)
			})
		},
	}
	return cmd
}

func itemCmd() *cobra.Command {
	it := &cobra.Command{Use: "item", Short: "Manage checklist items"}
	it.AddCommand(itemAddCmd())
	it.AddCommand(itemUpdateCmd())
	it.AddCommand(itemDeleteCmd())
	return it
}

func itemAddCmd() *cobra.Command {
	var milestoneID, title, desc string
	var order int
	var required, photo bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add checklist item",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			opts := engine.ItemCreateOptions{
				Title:       title,
				Description: desc,
				Order:       order,
			}
			if cmd.Flags().Changed("required") {
				opts.IsRequired = &required
			}
			if cmd.Flags().Changed("photo") {
				opts.IsPhotoRequired = &photo
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.CreateItem(ctx, milestoneID, opts, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&milestoneID, "milestone", "", "milestone id")
	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().IntVar(&order, "order", 0, "display order")
	cmd.Flags().BoolVar(&required, "required", true, "response required for submission")
	cmd.Flags().BoolVar(&photo, "photo", false, "photo evidence required for submission")
	_ = cmd.MarkFlagRequired("milestone")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func itemUpdateCmd() *cobra.Command {
	var title, desc string
	var order int
	var required, photo bool
	cmd := &cobra.Command{
		Use:   "update <item-id>",
		Short: "Update checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			var opts engine.ItemUpdateOptions
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &desc
			}
			if cmd.Flags().Changed("order") {
				opts.Order = &order
			}
			if cmd.Flags().Changed("required") {
				opts.IsRequired = &required
			}
			if cmd.Flags().Changed("photo") {
				opts.IsPhotoRequired = &photo
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.UpdateItem(ctx, args[0], opts, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().IntVar(&order, "order", 0, "display order")
	cmd.Flags().BoolVar(&required, "required", true, "response required for submission")
	cmd.Flags().BoolVar(&photo, "photo", false, "photo evidence required for submission")
	return cmd
}

func itemDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteItem(ctx, args[0], actor)
			})
		},
	}
	return cmd
}

func inspectionCmd() *cobra.Command {
	insp := &cobra.Command{Use: "inspection", Short: "Manage inspections"}
	insp.AddCommand(inspectionCreateCmd())
	insp.AddCommand(inspectionSubmitCmd())
	insp.AddCommand(inspectionReviewCmd())
	insp.AddCommand(inspectionShowCmd())
	insp.AddCommand(inspectionListCmd())
	return insp
}

// cliResponse mirrors the HTTP response payload so --responses accepts the
// same JSON the API does.
type cliResponse struct {
	ChecklistItemID string  `json:"checklist_item_id"`
	Result          string  `json:"result"`
	Remark          string  `json:"remark,omitempty"`
	MediaID         *string `json:"media_id,omitempty"`
}

func parseResponses(raw string) ([]engine.ResponseInput, error) {
	var parsed []cliResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("invalid --responses json: %w", err)
	}
	inputs := make([]engine.ResponseInput, 0, len(parsed))
	for _, r := range parsed {
		inputs = append(inputs, engine.ResponseInput{
			ChecklistItemID: r.ChecklistItemID,
			Result:          domain.ResponseResult(r.Result),
			Remark:          r.Remark,
			MediaID:         r.MediaID,
		})
	}
	return inputs, nil
}

func inspectionCreateCmd() *cobra.Command {
	var projectID, milestoneID, status, responses string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create inspection with responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			inputs, err := parseResponses(responses)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.CreateInspection(ctx, projectID, milestoneID, actor, domain.InspectionStatus(status), inputs)
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&milestoneID, "milestone", "", "milestone id")
	cmd.Flags().StringVar(&status, "status", "draft", "draft or submitted")
	cmd.Flags().StringVar(&responses, "responses", "[]", `responses JSON, e.g. [{"checklist_item_id":"...","result":"pass","media_id":"..."}]`)
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("milestone")
	return cmd
}

func inspectionSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <inspection-id>",
		Short: "Submit a draft inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.SubmitInspection(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	return cmd
}

func inspectionReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <inspection-id>",
		Short: "Review a submitted inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.ReviewInspection(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	return cmd
}

func inspectionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <inspection-id>",
		Short: "Show a single inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.GetInspection(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	return cmd
}

func inspectionListCmd() *cobra.Command {
	var projectID, cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Page through inspection summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ListInspectionPage(ctx, projectID, actor, cursor, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Milestone", "Engineer", "Status", "Pass", "Fail", "NA", "Submitted"})
				for _, s := range page.Items {
					submitted := ""
					if s.SubmittedAt != nil {
						submitted = *s.SubmittedAt
					}
					tw.AppendRow(table.Row{s.ID, s.MilestoneName, s.EngineerID, s.Status, s.PassCount, s.FailCount, s.NACount, submitted})
				}
				tw.Render()
				if page.HasMore {
					fmt.Printf("more available, continue with --cursor %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&cursor, "cursor", "", "page cursor")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (max 50)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func mediaCmd() *cobra.Command {
	md := &cobra.Command{Use: "media", Short: "Manage media references"}
	md.AddCommand(mediaRegisterCmd())
	return md
}

func mediaRegisterCmd() *cobra.Command {
	var id, kind, url string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a media reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := cliActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RegisterMedia(ctx, id, kind, url, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "media id (generated if omitted)")
	cmd.Flags().StringVar(&kind, "kind", string(domain.MediaKindInspectionEvidence), "media kind")
	cmd.Flags().StringVar(&url, "url", "", "asset url")
	return cmd
}

func auditCmd() *cobra.Command {
	audit := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	audit.AddCommand(auditTailCmd())
	return audit
}

func auditTailCmd() *cobra.Command {
	var projectID, action string
	var limit int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show latest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestAudit(ctx, limit, projectID, action, "", "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Action", "Entity", "Actor"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.TS, a.Action, a.EntityKind + "/" + a.EntityID, a.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&action, "action", "", "action filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "entry count")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyRevokeCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, role, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !domain.Role(role).IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.New().String() + uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actorID,
					Role:      domain.Role(role),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Printf("api key id: %s\nsecret (save it now): %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "member-id", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&role, "role", "", "role the key carries")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("member-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Bootstrap(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			var cfg *config.Config
			if configPath != "" {
				cfg, err = config.FromFile(configPath)
			} else {
				cfg, err = config.Load(workspace)
			}
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			if secret := os.Getenv("SITEWALK_JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowLegacyActorHead {
				return fmt.Errorf("SITEWALK_JWT_SECRET (or auth.jwt_secret) is required for bearer auth")
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:              cfg.Auth.JWTSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHead,
				},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Sitewalk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	cmd.Flags().StringVar(&configPath, "config", "", "config file path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Bootstrap(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Bootstrap(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
