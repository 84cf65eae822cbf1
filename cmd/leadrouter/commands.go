package main

import (
    "context"
    "fmt"
    "os"
    "time"

    "database/sql"

    "github.com/fatih/color"
    "github.com/olekukonko/tablewriter"
    "github.com/spf13/cobra"

    "github.com/hamzaKhattat/lead-router-core/internal/models"
)

var (
    green  = color.New(color.FgGreen).SprintFunc()
    red    = color.New(color.FgRed).SprintFunc()
    yellow = color.New(color.FgYellow).SprintFunc()
    bold   = color.New(color.Bold).SprintFunc()
)

func createStatsCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "stats",
        Short: "Show caller pool statistics",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            global, err := engine.Callers().CandidatesGlobal(ctx)
            if err != nil {
                return fmt.Errorf("failed to load global candidates: %w", err)
            }

            fmt.Printf("\n%s\n", bold("Caller Pool"))
            fmt.Printf("Global candidates: %s\n", green(fmt.Sprintf("%d", len(global))))

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Name", "Role", "Daily Limit", "Status"})
            table.SetBorder(false)

            for _, c := range global {
                limit := fmt.Sprintf("%d", c.DailyLimit)
                if c.Unlimited() {
                    limit = "unlimited"
                }
                status := green("active")
                if !c.Active() {
                    status = yellow("paused")
                }
                table.Append([]string{c.ID, c.Name, c.Role, limit, status})
            }
            table.Render()

            return nil
        },
    }
}

func createCallersCommand() *cobra.Command {
    callersCmd := &cobra.Command{
        Use:   "callers",
        Short: "Inspect caller configuration",
    }
    callersCmd.AddCommand(createCallersListCommand())
    return callersCmd
}

func createCallersListCommand() *cobra.Command {
    var state string

    cmd := &cobra.Command{
        Use:   "list",
        Short: "List candidate callers",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            var callers []models.Caller
            var err error
            if state != "" {
                callers, err = engine.Callers().CandidatesForState(ctx, state)
            } else {
                callers, err = engine.Callers().CandidatesGlobal(ctx)
            }
            if err != nil {
                return fmt.Errorf("failed to list callers: %w", err)
            }

            if len(callers) == 0 {
                fmt.Println("No callers found")
                return nil
            }

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Name", "Role", "Daily Limit", "Status", "Created"})
            table.SetBorder(false)

            for _, c := range callers {
                limit := fmt.Sprintf("%d", c.DailyLimit)
                if c.Unlimited() {
                    limit = "unlimited"
                }
                status := green("active")
                if !c.Active() {
                    status = yellow("paused")
                }
                table.Append([]string{c.ID, c.Name, c.Role, limit, status, c.CreatedAt.Format("2006-01-02 15:04:05")})
            }
            table.Render()

            return nil
        },
    }

    cmd.Flags().StringVar(&state, "state", "", "Restrict to candidates assigned to this state (default: global pool)")
    return cmd
}

func createLeadsCommand() *cobra.Command {
    leadsCmd := &cobra.Command{
        Use:   "leads",
        Short: "Inspect leads and their assignment history",
    }
    leadsCmd.AddCommand(createLeadsShowCommand())
    return leadsCmd
}

func createLeadsShowCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "show <lead-id>",
        Short: "Show a lead's current assignment",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            lead, assignment, err := loadLeadDetail(ctx, args[0])
            if err != nil {
                return fmt.Errorf("failed to load lead: %w", err)
            }

            fmt.Printf("\n%s\n", bold("Lead"))
            fmt.Printf("ID:               %s\n", lead.ID)
            fmt.Printf("Name:             %s\n", lead.Name)
            fmt.Printf("Phone:            %s\n", lead.Phone)
            fmt.Printf("Source:           %s\n", lead.LeadSource)
            fmt.Printf("City:             %s\n", lead.City)
            fmt.Printf("State:            %s\n", lead.State)
            fmt.Printf("Source Timestamp: %s\n", lead.SourceTimestamp.Format(time.RFC3339))

            fmt.Printf("\n%s\n", bold("Current Assignment"))
            status := yellow(string(assignment.Status))
            if assignment.Status == models.AssignmentStatusAssigned {
                status = green(string(assignment.Status))
            }
            fmt.Printf("Status:           %s\n", status)
            fmt.Printf("Reason:           %s\n", assignment.Reason)
            if assignment.CallerID != nil {
                name, err := engine.Callers().NameOf(ctx, *assignment.CallerID)
                if err != nil {
                    name = *assignment.CallerID
                }
                fmt.Printf("Caller:           %s (%s)\n", name, *assignment.CallerID)
            } else {
                fmt.Printf("Caller:           %s\n", red("none"))
            }
            fmt.Printf("Assigned At:      %s\n", assignment.AssignedAt.Format(time.RFC3339))
            fmt.Printf("Business Date:    %s\n", assignment.BusinessDate)

            return nil
        },
    }
}

func createAssignCommand() *cobra.Command {
    assignCmd := &cobra.Command{
        Use:   "assign",
        Short: "Manual assignment operations",
    }
    assignCmd.AddCommand(createAssignReassignCommand())
    return assignCmd
}

func createAssignReassignCommand() *cobra.Command {
    var callerID string

    cmd := &cobra.Command{
        Use:   "reassign <lead-id>",
        Short: "Manually reassign a lead, overriding fairness and cap routing",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }

            var target *string
            if callerID != "" {
                target = &callerID
            }

            outcome, err := engine.Reassign(ctx, args[0], target)
            if err != nil {
                return fmt.Errorf("reassignment failed: %w", err)
            }

            status := yellow(string(outcome.Status))
            if outcome.Status == models.AssignmentStatusAssigned {
                status = green(string(outcome.Status))
            }
            fmt.Printf("%s Lead %s reassigned: %s (%s)\n", green("✓"), outcome.LeadID, status, outcome.Reason)
            if outcome.CallerID != nil {
                fmt.Printf("  Caller: %s\n", *outcome.CallerID)
            }

            return nil
        },
    }

    cmd.Flags().StringVar(&callerID, "caller", "", "Target caller ID (omit to re-run automatic selection)")
    return cmd
}

// loadLeadDetail reads a lead and its current assignment straight from
// MySQL, bypassing the service layer for this read-only detail view.
func loadLeadDetail(ctx context.Context, leadID string) (*models.Lead, *models.Assignment, error) {
    var lead models.Lead
    err := database.QueryRowContext(ctx, `
        SELECT id, name, phone, source_timestamp, lead_source, city, state, metadata, created_at
        FROM leads WHERE id = ?`, leadID,
    ).Scan(&lead.ID, &lead.Name, &lead.Phone, &lead.SourceTimestamp, &lead.LeadSource, &lead.City, &lead.State, &lead.Metadata, &lead.CreatedAt)
    if err != nil {
        return nil, nil, err
    }

    var a models.Assignment
    var callerID sql.NullString
    err = database.QueryRowContext(ctx, `
        SELECT id, lead_id, caller_id, assigned_at, reason, status, business_date
        FROM assignments
        WHERE lead_id = ?
        ORDER BY assigned_at DESC LIMIT 1`, leadID,
    ).Scan(&a.ID, &a.LeadID, &callerID, &a.AssignedAt, &a.Reason, &a.Status, &a.BusinessDate)
    if err != nil {
        return nil, nil, err
    }
    if callerID.Valid {
        a.CallerID = &callerID.String
    }

    return &lead, &a, nil
}
