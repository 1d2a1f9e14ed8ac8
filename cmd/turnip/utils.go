package main

import "github.com/charmbracelet/lipgloss"

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)
