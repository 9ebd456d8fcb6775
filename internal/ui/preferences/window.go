package preferences

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
)

// Window handles the preferences UI.
type Window struct {
	window      fyne.Window
	settings    Settings
	onSave      func(Settings)
	title       *widget.Entry
	planned     *widget.Entry
	customStart *widget.Check
	customHour  *widget.Entry
	customMin   *widget.Entry
	idle        *widget.Entry
	grace       *widget.Entry
}

// New creates a preferences window.
func New(app fyne.App, settings Settings, onSave func(Settings)) *Window {
	window := app.NewWindow("Focus Timer Settings")

	prefs := &Window{
		window:      window,
		onSave:      onSave,
		title:       widget.NewEntry(),
		planned:     widget.NewEntry(),
		customStart: widget.NewCheck("Start next session at", nil),
		customHour:  widget.NewEntry(),
		customMin:   widget.NewEntry(),
		idle:        widget.NewEntry(),
		grace:       widget.NewEntry(),
	}
	prefs.UpdateSettings(settings)

	form := container.NewVBox(
		widget.NewLabelWithStyle("Session", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(widget.NewLabel("Default title"), prefs.title),
		container.NewHBox(widget.NewLabel("Planned length"), prefs.planned, widget.NewLabel("min (0 = open)")),
		container.NewHBox(prefs.customStart, prefs.customHour, widget.NewLabel(":"), prefs.customMin),
		widget.NewLabelWithStyle("Background", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(widget.NewLabel("Treat as away after"), prefs.idle, widget.NewLabel("min idle")),
		container.NewHBox(widget.NewLabel("Keep ticking for"), prefs.grace, widget.NewLabel("sec after losing focus")),
	)

	saveButton := widget.NewButton("Save", prefs.handleSave)
	cancelButton := widget.NewButton("Cancel", func() {
		window.Hide()
	})
	buttons := container.NewHBox(saveButton, layout.NewSpacer(), cancelButton)

	window.SetContent(container.NewBorder(nil, buttons, nil, nil, form))
	window.Resize(fyne.NewSize(420, 320))
	window.SetCloseIntercept(func() {
		window.Hide()
	})
	return prefs
}

// Show displays the preferences window.
func (prefs *Window) Show() {
	prefs.window.Show()
	prefs.window.RequestFocus()
}

// UpdateSettings replaces window values.
func (prefs *Window) UpdateSettings(settings Settings) {
	prefs.settings = settings
	prefs.title.SetText(settings.DefaultTitle)
	prefs.planned.SetText(strconv.Itoa(int(settings.PlannedDuration / time.Minute)))
	prefs.customStart.SetChecked(settings.CustomStart.Enabled)
	prefs.customHour.SetText(fmt.Sprintf("%02d", settings.CustomStart.Hour))
	prefs.customMin.SetText(fmt.Sprintf("%02d", settings.CustomStart.Minute))
	prefs.idle.SetText(strconv.Itoa(int(settings.IdleThreshold / time.Minute)))
	prefs.grace.SetText(strconv.Itoa(int(settings.GracePeriod / time.Second)))
}

func (prefs *Window) handleSave() {
	settings := prefs.settings

	if title := strings.TrimSpace(prefs.title.Text); title != "" {
		settings.DefaultTitle = title
	}
	if minutes, ok := parseBoundedInt(prefs.planned.Text, 0, 24*60); ok {
		settings.PlannedDuration = time.Duration(minutes) * time.Minute
	}
	if hour, ok := parseBoundedInt(prefs.customHour.Text, 0, 23); ok {
		settings.CustomStart.Hour = hour
	}
	if minute, ok := parseBoundedInt(prefs.customMin.Text, 0, 59); ok {
		settings.CustomStart.Minute = minute
	}
	settings.CustomStart.Enabled = prefs.customStart.Checked
	if minutes, ok := parseBoundedInt(prefs.idle.Text, 1, 24*60); ok {
		settings.IdleThreshold = time.Duration(minutes) * time.Minute
	}
	if seconds, ok := parseBoundedInt(prefs.grace.Text, 1, 24*3600); ok {
		settings.GracePeriod = time.Duration(seconds) * time.Second
	}

	prefs.settings = settings
	if prefs.onSave != nil {
		prefs.onSave(settings)
	}
	prefs.window.Hide()
}

func parseBoundedInt(value string, low, high int) (int, bool) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < low || parsed > high {
		return 0, false
	}
	return parsed, true
}
