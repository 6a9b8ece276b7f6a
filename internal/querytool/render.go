package querytool

import (
	"fmt"
	"strings"
)

const noResultsText = "No results found for this search query. " +
	"Try different search terms or check if the company name is spelled correctly."

// RenderItems formats items as numbered three-line blocks separated by blank
// lines, in the order given.
func RenderItems(items []Item) string {
	blocks := make([]string, 0, len(items))
	for i, item := range items {
		blocks = append(blocks, fmt.Sprintf("Result %d:\nTitle: %s\nDescription: %s\nURL: %s\n",
			i+1,
			orDefault(item.Title, "No title"),
			orDefault(item.Description, "No description"),
			orDefault(item.SourceURL, "No URL"),
		))
	}
	return strings.Join(blocks, "\n")
}

// RenderMeasurement formats a measurement as "name: value" lines under heading.
func RenderMeasurement(heading string, m Measurement) string {
	var sb strings.Builder
	if heading != "" {
		sb.WriteString(heading)
		sb.WriteString("\n")
	}
	for _, metric := range m {
		fmt.Fprintf(&sb, "%s: %s\n", metric.Name, metric.Value)
	}
	return sb.String()
}

// RenderFailure formats a failure for the named service with a remediation
// hint matching the fault kind.
func RenderFailure(service string, f *Failure) string {
	if f == nil {
		return fmt.Sprintf("%s failed for an unknown reason. Please try again later.", service)
	}
	switch f.Kind {
	case FaultTransientNetwork:
		return fmt.Sprintf("Network connection error (%s): Unable to reach the %s service after %d attempt(s). "+
			"This may be due to network connectivity issues, firewall restrictions, or service unavailability. "+
			"Please check your internet connection and try again.", f.Kind, service, f.Attempts)
	case FaultProtocolChanged:
		return fmt.Sprintf("%s API error (%s): The provider API may have changed. "+
			"Technical details: %s. Please check the provider integration for an update.", service, f.Kind, f.Message)
	case FaultInvalidInput:
		return fmt.Sprintf("%s lookup failed (%s): %s. "+
			"The provider has no such data for this input; do not retry with the same input.", service, f.Kind, f.Message)
	case FaultCanceled:
		return fmt.Sprintf("%s lookup canceled (%s): %s.", service, f.Kind, f.Message)
	default:
		return fmt.Sprintf("%s failed due to technical constraint (%s) after %d attempt(s). Error details: %s. "+
			"This may be due to %s rate limiting, service changes, or network issues. "+
			"Please try again later or use alternative search methods.", service, f.Kind, f.Attempts, f.Message, service)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
