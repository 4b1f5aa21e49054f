package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agencyops/internal/app"
	"agencyops/internal/domain"
)

func marginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "margin",
		Short: "Show a project's margin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				m, err := ws.Engine.CalculateMargin(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				cur := ws.Config.Currency
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Margin of " + projectID)
				tw.AppendRows([]table.Row{
					{"Revenue", money(m.Revenue, cur)},
					{"Direct costs", money(m.Costs.Direct, cur)},
					{"Time value", fmt.Sprintf("%s (%.2f h)", money(m.Costs.TimeValue, cur), m.BillableHours)},
					{"Total costs", money(m.Costs.Total, cur)},
				})
				tw.AppendSeparator()
				tw.AppendRow(table.Row{"Profit", money(m.Profit, cur)})
				tw.AppendRow(table.Row{"Margin", percent(m.MarginPercentage) + " " + string(m.Status)})
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
				tw.Render()
				return nil
			})
		},
	}
}

func marginsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "margins [project-id...]",
		Short: "Compute margins for several projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ids := args
				if all || len(ids) == 0 {
					projects, err := ws.Engine.Repo.ListProjects(ctx)
					if err != nil {
						return err
					}
					ids = nil
					for _, p := range projects {
						ids = append(ids, p.ID)
					}
				}
				res := ws.Engine.CalculateMarginsBatch(ctx, ids)
				if viper.GetBool("json") {
					return printJSON(res)
				}
				keys := make([]string, 0, len(res))
				for id := range res {
					keys = append(keys, id)
				}
				sort.Strings(keys)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project", "Profit", "Margin", "Status"})
				for _, id := range keys {
					m := res[id]
					tw.AppendRow(table.Row{id, money(m.Profit, ws.Config.Currency), percent(m.MarginPercentage), m.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "every project in the workspace")
	return cmd
}

func varianceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variance <task-id>",
		Short: "Compare a task's estimate with tracked time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				v, err := ws.Engine.CalculateTaskVariance(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"applicable": v != nil, "variance": v})
				}
				if v == nil {
					fmt.Printf("task %s has no estimate; variance not applicable\n", args[0])
					return nil
				}
				cur := ws.Config.Currency
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle(v.Title)
				tw.AppendHeader(table.Row{"", "Planned", "Actual", "Variance"})
				tw.AppendRow(table.Row{"Hours", fmt.Sprintf("%.2f", v.PlannedHours), fmt.Sprintf("%.2f", v.ActualHours),
					fmt.Sprintf("%+.2f (%s)", v.HoursVariance, percent(v.HoursVariancePercent))})
				tw.AppendRow(table.Row{"Value", money(v.PlannedValue, cur), money(v.ActualValue, cur),
					fmt.Sprintf("%s (%s)", money(v.ValueVariance, cur), percent(v.ValueVariancePercent))})
				tw.AppendFooter(table.Row{"Status", string(v.Status), fmt.Sprintf("rates %v", v.RatesUsed), ""})
				tw.Render()
				return nil
			})
		},
	}
}

func breakdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breakdown",
		Short: "Planned versus actual by service and seniority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				rows, err := ws.Engine.ServiceBreakdown(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				cur := ws.Config.Currency
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Service", "Seniority", "Tasks", "Planned h", "Actual h", "Planned", "Actual", "Variance", "Status"})
				for _, r := range rows {
					seniority := r.SeniorityName
					if r.SeniorityID == nil {
						seniority = "(" + domain.NoSeniority + ")"
					}
					tw.AppendRow(table.Row{
						r.ServiceName, seniority, r.TaskCount,
						fmt.Sprintf("%.2f", r.PlannedHours), fmt.Sprintf("%.2f", r.ActualHours),
						money(r.PlannedValue, cur), money(r.ActualValue, cur),
						percent(r.ValueVariancePercent), r.Status,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func budgetCmd() *cobra.Command {
	b := &cobra.Command{Use: "budget", Short: "Project budgets"}
	b.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Set the project budget to its approved quote total",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				ws.Engine.SyncProjectBudget(ctx, projectID)
				p, err := ws.Engine.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project_id": p.ID, "budget_total": p.BudgetTotal})
				}
				fmt.Printf("budget of %s: %s\n", p.ID, money(p.BudgetTotal, ws.Config.Currency))
				return nil
			})
		},
	})
	return b
}
