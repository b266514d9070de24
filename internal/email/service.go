package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendBookingReceived tells the student their booking was recorded
func (s *Service) SendBookingReceived(to string, d BookingDetails) error {
	subject := fmt.Sprintf("Booking received: %s on %s (ref %s)", d.Type, d.Date, shortRef(d.BookingID))
	return s.send(to, subject, BuildBookingReceivedBody(d))
}

// SendBookingCancelled tells the student their booking was removed
func (s *Service) SendBookingCancelled(to string, d BookingDetails) error {
	subject := fmt.Sprintf("Booking cancelled: %s on %s (ref %s)", d.Type, d.Date, shortRef(d.BookingID))
	return s.send(to, subject, BuildBookingCancelledBody(d))
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
