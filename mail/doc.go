// Package mail delivers one-time codes. [SMTPMailer] sends through an SMTP
// relay with gomail; [LogMailer] writes codes to a logger for local
// development only.
package mail
