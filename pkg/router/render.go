package router

import (
	"fmt"
	"html"
	"strings"

	"tableorders/pkg/order"
)

const orderTimeLayout = "2006-01-02 15:04:05.999999999 UTC"

// OrderListFragment renders orders as an HTML list, one entry per order, in
// the order given.
func OrderListFragment(orders []order.OrderItem) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, o := range orders {
		b.WriteString("\r\n")
		writeItem(&b, o)
	}
	b.WriteString("</ul>")
	return b.String()
}

// OrderFragment renders a single order.
func OrderFragment(o order.OrderItem) string {
	var b strings.Builder
	b.WriteString("<ul>\r\n")
	writeItem(&b, o)
	b.WriteString("</ul>")
	return b.String()
}

func writeItem(b *strings.Builder, o order.OrderItem) {
	fmt.Fprintf(b,
		"<li>Order ID: %d - Order Table Number: %d - Order Menu Reference: %d - Order Time: %s - Cooking Duration: %s</li>",
		o.ID, o.TableNumber, o.MenuReference, o.OrderTime.UTC().Format(orderTimeLayout), o.CookingTime)
}

func errorFragment(err error) string {
	return "<p>" + html.EscapeString(err.Error()) + "</p>"
}
