package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"capcache/pkg/caps"
)

// Style definitions shared by the human-facing commands.
var (
	primaryColor = lipgloss.Color("#8BE9FD") // Cyan
	accentColor  = lipgloss.Color("#50FA7B") // Green
	mutedColor   = lipgloss.Color("#6272A4") // Comment
	fgColor      = lipgloss.Color("#F8F8F2") // Foreground

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	fingerprintStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)
)

func renderFingerprint(algo, ver string, identities, features, forms int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Capability fingerprint"))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Hash") + valueStyle.Render(algo) + "\n")
	b.WriteString(labelStyle.Render("Ver") + fingerprintStyle.Render(ver) + "\n")
	b.WriteString(labelStyle.Render("Contents") + mutedStyle.Render(
		fmt.Sprintf("%d identities, %d features, %d forms", identities, features, forms)))
	return b.String()
}

func printCapabilitySet(set *caps.Set, algo, ver string) {
	fmt.Println(titleStyle.Render("Verified capability set"))
	fmt.Println(labelStyle.Render("Node") + valueStyle.Render(set.Node))
	fmt.Println(labelStyle.Render("Hash") + valueStyle.Render(algo))
	fmt.Println(labelStyle.Render("Ver") + fingerprintStyle.Render(ver))
	fmt.Println()

	if len(set.Identities) > 0 {
		t := table.New().
			Headers("CATEGORY", "TYPE", "NAME", "LANG").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == 0 {
					return headerStyle
				}
				return valueStyle
			})
		for _, id := range set.Identities {
			t.Row(id.Category, id.Type, id.Name, id.Lang)
		}
		fmt.Println(t.Render())
	}

	if len(set.Features) > 0 {
		fmt.Println(titleStyle.Render("Features"))
		for _, feature := range set.Features {
			fmt.Println("  " + valueStyle.Render(feature))
		}
	}
}

func printDatasetTable(rows [][]string) {
	t := table.New().
		Headers("TIER", "HASH", "NODE", "FEATURES").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return valueStyle
		})
	for _, row := range rows {
		t.Row(row...)
	}
	fmt.Println(t.Render())
}
