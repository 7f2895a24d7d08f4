package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success   bool
	Operation string
	Host      string
	Database  string
	StartTime time.Time
	Duration  time.Duration

	// Run details (if successful).
	Artifact  string
	Checksum  string
	SizeBytes int64
	Uploaded  bool
	Tables    int

	// Error info (if failed).
	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
