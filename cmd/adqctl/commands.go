package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"adquisiciones/internal/core"
	"adquisiciones/internal/listing"
	"adquisiciones/internal/services"
)

func statsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics of the active records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dash, err := e.app.Service.Dashboard(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("load statistics: %w", err)
			}
			writeStats(cmd.OutOrStdout(), e, dash.Stats)
			return nil
		},
	}
}

func writeStats(out io.Writer, e *env, st core.DashboardStatistics) {
	fmt.Fprintf(out, "Adquisiciones activas: %s\n", e.formatter.FormatNumber(int64(st.TotalActiveRecords)))
	fmt.Fprintf(out, "Presupuesto total:     %s\n", e.formatter.FormatMoney(st.TotalBudget))
	fmt.Fprintf(out, "Proveedores:           %s\n", e.formatter.FormatNumber(int64(st.UniqueSupplierCount)))
	fmt.Fprintf(out, "Este mes:              %s\n", e.formatter.FormatNumber(int64(st.RecordsThisMonth)))
	if len(st.TopCategories) == 0 {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORÍA\tVALOR\t%")
	for _, c := range st.TopCategories {
		fmt.Fprintf(w, "%s\t%s\t%.1f\n", c.Category, e.formatter.FormatAmount(c.Value), c.Percentage)
	}
	_ = w.Flush()
}

func listCmd(e *env) *cobra.Command {
	var (
		search   string
		page     int
		pageSize int
		status   string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records with search and pagination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := listing.ParseStatus(status)
			if all {
				st = listing.StatusAll
			}
			res, err := e.app.Service.Listing(cmd.Context(), services.ListQuery{
				Search:   search,
				Page:     page,
				PageSize: pageSize,
				Status:   st,
			}, time.Now())
			if err != nil {
				return fmt.Errorf("list records: %w", err)
			}
			writeList(cmd.OutOrStdout(), e, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "q", "q", "", "search term")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "records per page (default from configuration)")
	cmd.Flags().StringVar(&status, "estado", string(listing.StatusActive), "activas, inactivas or todas")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive records (same as --estado todas)")
	return cmd
}

func writeList(out io.Writer, e *env, res services.ListResult) {
	if len(res.Records) == 0 {
		fmt.Fprintln(out, "No se encontraron adquisiciones.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVEEDOR\tCATEGORÍA\tUNIDAD\tCANT.\tTOTAL\tFECHA\tACTIVA")
	for _, r := range res.Records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Supplier, r.Category, r.AdministrativeUnit, r.Quantity,
			e.formatter.FormatAmount(r.TotalValue), r.AcquisitionDate, yesNo(r.Active))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\nPágina %d de %d (%d coincidencias, presupuesto %s)\n",
		res.State.CurrentPage, res.State.TotalPages, res.Matched, e.formatter.FormatMoney(res.Stats.TotalBudget))
}

func yesNo(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}

func historyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the change log of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			view, err := e.app.Service.History(cmd.Context(), id, time.Now())
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Adquisición %d: %s (%s)\n", view.Record.ID, view.Record.Supplier, view.Record.Category)
			fmt.Fprintf(out, "Cambios: %d  Usuarios: %d  Este mes: %d  Campo más modificado: %s\n\n",
				view.Summary.TotalChanges, view.Summary.UniqueModifiers,
				view.Summary.ChangesThisMonth, view.Summary.MostModifiedField)
			if len(view.Entries) == 0 {
				fmt.Fprintln(out, "Sin cambios registrados.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FECHA\tUSUARIO\tCAMPO\tANTERIOR\tNUEVO")
			for _, h := range view.Entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					h.ChangedAt.Format("2006-01-02 15:04"), h.ChangedBy, h.Field, h.OldValue, h.NewValue)
			}
			return w.Flush()
		},
	}
}

func toggleCmd(e *env, reactivate bool) *cobra.Command {
	use, short, done := "deactivate <id>", "Deactivate a record", "desactivada"
	if reactivate {
		use, short, done = "reactivate <id>", "Reactivate a deactivated record", "reactivada"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if reactivate {
				err = e.app.Service.Reactivate(cmd.Context(), id)
			} else {
				err = e.app.Service.Deactivate(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Adquisición %d %s\n", id, done)
			return nil
		},
	}
}

func exportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the record snapshot to the configured spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := e.app.Service.Export(cmd.Context())
			if errors.Is(err, services.ErrExportDisabled) {
				return errors.New("export is not configured: set GOOGLE_SPREADSHEET_ID and service account credentials")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Se exportaron %d adquisiciones\n", n)
			return nil
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := core.ParseID(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q", err, s)
	}
	return id, nil
}
