package email

import (
	"fmt"
	"html"
)

// BookingDetails is the class information shown in booking emails
type BookingDetails struct {
	BookingID string
	Type      string
	Date      string
	Time      string
	Teacher   string
}

// BuildBookingReceivedBody builds the HTML body for a new booking
func BuildBookingReceivedBody(d BookingDetails) string {
	return buildBody(
		"#3a7d6b",
		"Your spot is reserved",
		"Thanks for booking a class with us. Your booking is pending confirmation by the studio.",
		d,
	)
}

// BuildBookingCancelledBody builds the HTML body for a removed booking
func BuildBookingCancelledBody(d BookingDetails) string {
	return buildBody(
		"#9a4c4c",
		"Your booking was cancelled",
		"The booking below has been removed. Your spot is now available to other students.",
		d,
	)
}

func buildBody(color, title, intro string, d BookingDetails) string {
	teacher := d.Teacher
	if teacher == "" {
		teacher = "To be announced"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: %s; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">%s</p>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<tr><td style="padding: 8px; color: #666;">Class</td><td style="padding: 8px; font-weight: bold;">%s</td></tr>
			<tr><td style="padding: 8px; color: #666;">Date</td><td style="padding: 8px;">%s</td></tr>
			<tr><td style="padding: 8px; color: #666;">Time</td><td style="padding: 8px;">%s</td></tr>
			<tr><td style="padding: 8px; color: #666;">Teacher</td><td style="padding: 8px;">%s</td></tr>
		</table>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px;">
			<p style="margin: 0; font-size: 14px; color: #666;">Booking reference</p>
			<p style="margin: 5px 0 0 0; font-size: 16px; font-family: monospace;">%s</p>
		</div>
	</div>
</body>
</html>`,
		color,
		title,
		intro,
		html.EscapeString(d.Type),
		html.EscapeString(d.Date),
		html.EscapeString(d.Time),
		html.EscapeString(teacher),
		html.EscapeString(d.BookingID),
	)
}
