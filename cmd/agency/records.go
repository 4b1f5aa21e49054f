package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agencyops/internal/app"
	"agencyops/internal/domain"
	"agencyops/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectUpdateCmd() *cobra.Command {
	var name, status string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Rename a project or change its status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				p, err := ws.Engine.UpdateProject(ctx, projectID, name, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&status, "status", "", "active, paused or archived")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project and everything recorded against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete without --yes")
			}
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				if err := ws.Engine.DeleteProject(ctx, projectID); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", projectID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Budget", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, money(p.BudgetTotal, ws.Config.Currency), p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				p, err := ws.Engine.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				docs, err := ws.Engine.Repo.ListDocuments(ctx, projectID)
				if err != nil {
					return err
				}
				tasks, err := ws.Engine.Repo.ListTasks(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"project": p, "documents": docs, "tasks": tasks})
			})
		},
	}
}

func clientCmd() *cobra.Command {
	c := &cobra.Command{Use: "client", Short: "Manage clients"}
	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				client, err := e.AddClient(ctx, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(client)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "client id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "client name")
	_ = add.MarkFlagRequired("name")
	c.AddCommand(add)
	return c
}

func serviceCmd() *cobra.Command {
	s := &cobra.Command{Use: "service", Short: "Manage the service catalog"}
	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				svc, err := e.AddService(ctx, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(svc)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "service id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "service name")
	_ = add.MarkFlagRequired("name")
	s.AddCommand(add)
	return s
}

func seniorityCmd() *cobra.Command {
	s := &cobra.Command{Use: "seniority", Short: "Manage seniority levels"}
	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a seniority level",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				level, err := e.AddSeniorityLevel(ctx, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(level)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "seniority id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "seniority name")
	_ = add.MarkFlagRequired("name")
	s.AddCommand(add)
	return s
}

func personCmd() *cobra.Command {
	p := &cobra.Command{Use: "person", Short: "Manage people and their rates"}
	p.AddCommand(personAddCmd())
	p.AddCommand(personSetRateCmd())
	return p
}

func personAddCmd() *cobra.Command {
	var id, name string
	var billable, cost float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a person",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				person, err := e.AddPerson(ctx, id, name, billable, cost)
				if err != nil {
					return err
				}
				return printJSONOrTable(person)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "person id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "person name")
	cmd.Flags().Float64Var(&billable, "billable-rate", 0, "hourly billable rate")
	cmd.Flags().Float64Var(&cost, "cost-rate", 0, "hourly cost rate")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func personSetRateCmd() *cobra.Command {
	var billable, cost float64
	cmd := &cobra.Command{
		Use:   "set-rate <person-id>",
		Short: "Change a person's current rates",
		Long:  "Rates are read when margins and variances are computed, so a change re-prices time already tracked.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				person, err := e.SetPersonRates(ctx, args[0],
					optionalFloat(cmd, "billable-rate", billable), optionalFloat(cmd, "cost-rate", cost))
				if err != nil {
					return err
				}
				return printJSONOrTable(person)
			})
		},
	}
	cmd.Flags().Float64Var(&billable, "billable-rate", 0, "hourly billable rate")
	cmd.Flags().Float64Var(&cost, "cost-rate", 0, "hourly cost rate")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	var opts engine.TaskCreateOptions
	var hours, rate float64
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				opts.ProjectID = projectID
				opts.EstimatedHours = optionalFloat(cmd, "estimated-hours", hours)
				opts.EstimatedRate = optionalFloat(cmd, "estimated-rate", rate)
				task, err := ws.Engine.AddTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	add.Flags().StringVar(&opts.ID, "id", "", "task id (generated when empty)")
	add.Flags().StringVar(&opts.Title, "title", "", "task title")
	add.Flags().StringVar(&opts.ServiceID, "service", "", "service id")
	add.Flags().StringVar(&opts.SeniorityID, "seniority", "", "seniority id")
	add.Flags().Float64Var(&hours, "estimated-hours", 0, "estimated hours")
	add.Flags().Float64Var(&rate, "estimated-rate", 0, "estimated hourly rate")
	_ = add.MarkFlagRequired("title")
	t.AddCommand(add)
	t.AddCommand(taskEstimateCmd())
	return t
}

func taskEstimateCmd() *cobra.Command {
	var hours, rate float64
	cmd := &cobra.Command{
		Use:   "estimate <task-id>",
		Short: "Set or clear a task's planned hours and rate",
		Long:  "Omitted flags clear the field. A task needs both values to be part of variance reporting.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				task, err := e.SetTaskEstimate(ctx, args[0],
					optionalFloat(cmd, "hours", hours), optionalFloat(cmd, "rate", rate))
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().Float64Var(&rate, "rate", 0, "estimated hourly rate")
	return cmd
}

func costCmd() *cobra.Command {
	c := &cobra.Command{Use: "cost", Short: "Record direct costs"}
	var opts engine.CostCreateOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				opts.ProjectID = projectID
				cost, err := ws.Engine.AddCost(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(cost)
			})
		},
	}
	add.Flags().Float64Var(&opts.Amount, "amount", 0, "amount")
	add.Flags().StringVar(&opts.Description, "description", "", "description")
	add.Flags().StringVar(&opts.Category, "category", "other", "category")
	add.Flags().BoolVar(&opts.IsEstimated, "estimated", false, "amount is an estimate")
	add.Flags().StringVar(&opts.IncurredOn, "incurred-on", "", "date the cost was incurred (YYYY-MM-DD)")
	_ = add.MarkFlagRequired("amount")
	c.AddCommand(add)
	return c
}

func timeCmd() *cobra.Command {
	t := &cobra.Command{Use: "time", Short: "Track time"}
	t.AddCommand(timeAddCmd())
	t.AddCommand(timeStartCmd())
	t.AddCommand(timeStopCmd())
	return t
}

func bindTimeFlags(cmd *cobra.Command, opts *engine.TimeEntryOptions, nonBillable *bool) {
	cmd.Flags().StringVar(&opts.PersonID, "person", "", "person id")
	cmd.Flags().StringVar(&opts.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note")
	cmd.Flags().BoolVar(nonBillable, "non-billable", false, "exclude from billable value")
	_ = cmd.MarkFlagRequired("person")
}

func timeAddCmd() *cobra.Command {
	var opts engine.TimeEntryOptions
	var nonBillable bool
	var startedAt string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Log a completed time entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if startedAt != "" {
				ts, err := time.Parse(time.RFC3339, startedAt)
				if err != nil {
					return fmt.Errorf("invalid --started-at: %w", err)
				}
				opts.StartedAt = ts
			}
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				opts.ProjectID = projectID
				opts.Billable = !nonBillable
				entry, err := ws.Engine.LogTime(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	bindTimeFlags(cmd, &opts, &nonBillable)
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "duration, e.g. 1h30m")
	cmd.Flags().StringVar(&startedAt, "started-at", "", "start time (RFC3339, default now)")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func timeStartCmd() *cobra.Command {
	var opts engine.TimeEntryOptions
	var nonBillable bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				opts.ProjectID = projectID
				opts.Billable = !nonBillable
				entry, err := ws.Engine.StartTimer(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	bindTimeFlags(cmd, &opts, &nonBillable)
	return cmd
}

func timeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <entry-id>",
		Short: "Stop a running timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.StopTimer(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
}

func docCmd() *cobra.Command {
	d := &cobra.Command{Use: "doc", Short: "Manage quotes, invoices and credit notes"}
	d.AddCommand(docAddCmd())
	d.AddCommand(docUpdateCmd())
	d.AddCommand(docDeleteCmd())
	return d
}

func docAddCmd() *cobra.Command {
	var opts engine.DocumentCreateOptions
	var kind, status string
	var gross float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a revenue document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				opts.ProjectID = projectID
				opts.Kind = domain.DocumentKind(kind)
				opts.Status = domain.DocumentStatus(status)
				opts.GrossAmount = optionalFloat(cmd, "gross", gross)
				opts.ActorID = viper.GetString("actor-id")
				doc, err := ws.Engine.CreateDocument(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(doc)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "quote", "quote, invoice or credit-note")
	cmd.Flags().StringVar(&status, "status", "draft", "draft, sent, approved or rejected")
	cmd.Flags().StringVar(&opts.Number, "number", "", "document number")
	cmd.Flags().Float64Var(&opts.NetAmount, "net", 0, "net amount")
	cmd.Flags().Float64Var(&opts.VATPercent, "vat", 0, "VAT percent")
	cmd.Flags().Float64Var(&gross, "gross", 0, "gross amount (computed from net and VAT when omitted)")
	cmd.Flags().StringVar(&opts.IssueDate, "issue-date", "", "issue date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("net")
	return cmd
}

func docUpdateCmd() *cobra.Command {
	var project, kind, status, number, issueDate string
	var net, vat, gross float64
	cmd := &cobra.Command{
		Use:   "update <document-id>",
		Short: "Update a revenue document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.DocumentUpdateOptions{
					ProjectID:   optionalString(cmd, "move-to", project),
					Number:      optionalString(cmd, "number", number),
					NetAmount:   optionalFloat(cmd, "net", net),
					VATPercent:  optionalFloat(cmd, "vat", vat),
					GrossAmount: optionalFloat(cmd, "gross", gross),
					IssueDate:   optionalString(cmd, "issue-date", issueDate),
					ActorID:     viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("kind") {
					k := domain.DocumentKind(kind)
					opts.Kind = &k
				}
				if cmd.Flags().Changed("status") {
					s := domain.DocumentStatus(status)
					opts.Status = &s
				}
				doc, err := e.UpdateDocument(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(doc)
			})
		},
	}
	cmd.Flags().StringVar(&project, "move-to", "", "move the document to another project")
	cmd.Flags().StringVar(&kind, "kind", "", "quote, invoice or credit-note")
	cmd.Flags().StringVar(&status, "status", "", "draft, sent, approved or rejected")
	cmd.Flags().StringVar(&number, "number", "", "document number")
	cmd.Flags().Float64Var(&net, "net", 0, "net amount")
	cmd.Flags().Float64Var(&vat, "vat", 0, "VAT percent")
	cmd.Flags().Float64Var(&gross, "gross", 0, "gross amount")
	cmd.Flags().StringVar(&issueDate, "issue-date", "", "issue date (YYYY-MM-DD)")
	return cmd
}

func docDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a revenue document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteDocument(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}
