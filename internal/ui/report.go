package ui

import (
	"fmt"
	"io"
	"sort"

	"github.com/temirov/gitpublish/internal/gitrepo"
	"github.com/temirov/gitpublish/internal/journal"
	"github.com/temirov/gitpublish/internal/publish"
)

const (
	bindCreatedTemplateConstant             = "bound %s to %s\n"
	bindUnchangedTemplateConstant           = "%s already bound to %s\n"
	renameChangedTemplateConstant           = "renamed primary line %s to %s\n"
	renameUnchangedTemplateConstant         = "primary line already named %s\n"
	transmitUpToDateTemplateConstant        = "%s/%s already up to date at %s\n"
	transmitCompletedTemplateConstant       = "published %d commit(s) on %s to %s (%s)\n"
	upstreamConfiguredTemplateConstant      = "%s now tracks %s/%s\n"
	statusEndpointsHeaderConstant           = "endpoints:\n"
	statusEndpointTemplateConstant          = "  %s\t%s\n"
	statusNoEndpointsConstant               = "  (none)\n"
	statusStatesHeaderConstant              = "states:\n"
	statusStateTemplateConstant             = "  %s\t%s\t%s\t%s\n"
	statusHistoryHeaderConstant             = "history:\n"
	statusHistoryTemplateConstant           = "  %s\t%s\t%s -> %s\t%s\n"
	statusNoEntriesConstant                 = "  (no journal entries)\n"
	statusTimestampLayoutConstant           = "2006-01-02T15:04:05Z07:00"
	shortHashLengthConstant                 = 7
	emptyLinePlaceholderConstant            = "-"
	entryMessageWithCommitsTemplateConstant = "%s (%d commit(s))"
)

// ReportPrinter writes operator-facing summaries of publish operations.
type ReportPrinter struct {
	writer io.Writer
}

// NewReportPrinter constructs a ReportPrinter writing to writer; a nil writer discards output.
func NewReportPrinter(writer io.Writer) *ReportPrinter {
	if writer == nil {
		writer = io.Discard
	}
	return &ReportPrinter{writer: writer}
}

// ReportBind prints the outcome of an endpoint binding.
func (printer *ReportPrinter) ReportBind(report publish.BindReport) {
	template := bindUnchangedTemplateConstant
	if report.Created {
		template = bindCreatedTemplateConstant
	}
	fmt.Fprintf(printer.writer, template, report.Endpoint, redact(report.URL))
}

// ReportRename prints the outcome of a primary line relabel.
func (printer *ReportPrinter) ReportRename(report publish.RenameReport) {
	if !report.Changed {
		fmt.Fprintf(printer.writer, renameUnchangedTemplateConstant, report.Current)
		return
	}
	fmt.Fprintf(printer.writer, renameChangedTemplateConstant, report.Previous, report.Current)
}

// ReportTransmit prints the outcome of a transmission.
func (printer *ReportPrinter) ReportTransmit(report publish.TransmitReport) {
	if report.UpToDate() {
		fmt.Fprintf(printer.writer, transmitUpToDateTemplateConstant, report.Endpoint, report.Line, abbreviate(report.LocalTip))
	} else {
		fmt.Fprintf(printer.writer, transmitCompletedTemplateConstant, report.CommitsTransmitted, report.Line, report.Endpoint, abbreviate(report.LocalTip))
	}
	if report.UpstreamConfigured {
		fmt.Fprintf(printer.writer, upstreamConfiguredTemplateConstant, report.Line, report.Endpoint, report.Line)
	}
}

// ReportStatus prints bound endpoints, the latest journaled state per endpoint/line pair, and recent history.
func (printer *ReportPrinter) ReportStatus(endpoints map[publish.EndpointName]string, latest []journal.Entry, history []journal.Entry) {
	fmt.Fprint(printer.writer, statusEndpointsHeaderConstant)
	if len(endpoints) == 0 {
		fmt.Fprint(printer.writer, statusNoEndpointsConstant)
	}
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(printer.writer, statusEndpointTemplateConstant, name, redact(endpoints[publish.EndpointName(name)]))
	}

	fmt.Fprint(printer.writer, statusStatesHeaderConstant)
	if len(latest) == 0 {
		fmt.Fprint(printer.writer, statusNoEntriesConstant)
	}
	for _, entry := range latest {
		fmt.Fprintf(printer.writer, statusStateTemplateConstant, entry.Endpoint, lineOrPlaceholder(entry.Line), entry.To, entry.RecordedAt.Format(statusTimestampLayoutConstant))
	}

	if len(history) == 0 {
		return
	}
	fmt.Fprint(printer.writer, statusHistoryHeaderConstant)
	for _, entry := range history {
		message := entry.Message
		if entry.Commits > 0 {
			message = fmt.Sprintf(entryMessageWithCommitsTemplateConstant, message, entry.Commits)
		}
		fmt.Fprintf(printer.writer, statusHistoryTemplateConstant, entry.RecordedAt.Format(statusTimestampLayoutConstant), entry.Operation, entry.From, entry.To, message)
	}
}

func redact(rawURL string) string {
	parsed, parseError := gitrepo.ParseEndpointURL(rawURL)
	if parseError != nil {
		return rawURL
	}
	return parsed.Redacted()
}

func abbreviate(hash string) string {
	if len(hash) > shortHashLengthConstant {
		return hash[:shortHashLengthConstant]
	}
	return hash
}

func lineOrPlaceholder(line string) string {
	if len(line) == 0 {
		return emptyLinePlaceholderConstant
	}
	return line
}
