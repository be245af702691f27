// Package notify sends the customer emails that follow an order: the
// confirmation after checkout and a message on every status change.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/tasks"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return "৳" + d.StringFixed(2) },
}).ParseFS(templateFS, "templates/*.html"))

type Notifier struct {
	mailer  Mailer
	tasks   tasks.Dispatcher
	baseURL string
	logger  *slog.Logger
}

func NewNotifier(m Mailer, d tasks.Dispatcher, publicBaseURL string, logger *slog.Logger) *Notifier {
	return &Notifier{mailer: m, tasks: d, baseURL: publicBaseURL, logger: logger.With("component", "notify")}
}

// OnLedgerEvent queues the email matching the event. Orders without an
// email address are skipped.
func (n *Notifier) OnLedgerEvent(_ context.Context, ev orders.Event) {
	o := ev.Order
	if o.CustomerEmail == "" {
		return
	}
	var build func() (Message, error)
	switch ev.Kind {
	case orders.EventCreated:
		build = func() (Message, error) { return n.Confirmation(o) }
	case orders.EventStatusChanged:
		t := ev.Transition
		build = func() (Message, error) { return n.StatusChange(o, t) }
	default:
		return
	}
	n.tasks.Dispatch(tasks.Task{
		Name: "order-email",
		Run: func(ctx context.Context) error {
			msg, err := build()
			if err != nil {
				return err
			}
			if err := n.mailer.Send(ctx, msg); err != nil {
				return fmt.Errorf("send %q to %s: %w", msg.Subject, o.CustomerEmail, err)
			}
			n.logger.InfoContext(ctx, "order email sent", "order_number", o.OrderNumber, "kind", ev.Kind)
			return nil
		},
	})
}

func (n *Notifier) TrackURL(number string) string {
	return n.baseURL + "/track?orderNumber=" + url.QueryEscape(number)
}

func (n *Notifier) Confirmation(o models.Order) (Message, error) {
	track := n.TrackURL(o.OrderNumber)
	body, err := render("confirmation.html", map[string]any{
		"Order":        o,
		"TrackURL":     track,
		"PaymentLabel": paymentLabel(o),
	})
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		To:      o.CustomerEmail,
		Subject: fmt.Sprintf("Order %s confirmed - Bazar", o.OrderNumber),
		HTML:    body,
	}

	png, err := qrcode.Encode(track, qrcode.Medium, 256)
	if err != nil {
		n.logger.Warn("tracking QR code not generated", "order_number", o.OrderNumber, "error", err)
		return msg, nil
	}
	msg.Attachments = append(msg.Attachments, Attachment{Name: "track-" + o.OrderNumber + ".png", Data: png})
	return msg, nil
}

func (n *Notifier) StatusChange(o models.Order, t models.StatusTransition) (Message, error) {
	body, err := render("status.html", map[string]any{
		"Order":    o,
		"Badge":    orders.BadgeFor(t.To),
		"Color":    statusColor(t.To),
		"Message":  statusMessage(t.To),
		"Note":     t.Note,
		"TrackURL": n.TrackURL(o.OrderNumber),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: o.CustomerEmail, Subject: statusSubject(o.OrderNumber, t.To), HTML: body}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func paymentLabel(o models.Order) string {
	if o.PaymentMethod == models.PaymentCOD {
		return "cash on delivery"
	}
	if o.PaymentStatus == models.PaymentPaid {
		return "paid by card"
	}
	return "card"
}

func statusSubject(number string, s models.OrderStatus) string {
	switch s {
	case models.StatusConfirmed:
		return "Order " + number + " confirmed - Bazar"
	case models.StatusShipped:
		return "Order " + number + " is on its way - Bazar"
	case models.StatusDelivered:
		return "Order " + number + " delivered - Bazar"
	case models.StatusCancelled:
		return "Order " + number + " cancelled - Bazar"
	case models.StatusRefunded:
		return "Order " + number + " refunded - Bazar"
	default:
		return "Order " + number + " update - Bazar"
	}
}

func statusMessage(s models.OrderStatus) string {
	switch s {
	case models.StatusConfirmed:
		return "We have confirmed your order and will start preparing it shortly."
	case models.StatusProcessing:
		return "Your order is being packed."
	case models.StatusShipped:
		return "Your order has left our warehouse and is with the courier."
	case models.StatusDelivered:
		return "Your order has been delivered. Enjoy!"
	case models.StatusCancelled:
		return "Your order has been cancelled. Card payments are refunded to the original card."
	case models.StatusRefunded:
		return "Your refund has been issued. It can take a few business days to appear."
	default:
		return "Your order status has changed."
	}
}

func statusColor(s models.OrderStatus) string {
	switch s {
	case models.StatusDelivered:
		return "#16a34a"
	case models.StatusShipped:
		return "#2563eb"
	case models.StatusCancelled:
		return "#dc2626"
	case models.StatusRefunded:
		return "#9333ea"
	default:
		return "#f59e0b"
	}
}
