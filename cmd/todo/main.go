package main

import (
	"context"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/fastygo/todosync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
		os.Stderr.WriteString(style.Render("✖ "+err.Error()) + "\n")
		os.Exit(1)
	}
}
