package booking

import (
	"fmt"
	"strings"
	"time"
)

const portalDateLayout = "02/01/2006"

// Sender is the dispatching business as the portal knows it.
type Sender struct {
	Company      string
	Phone        string
	Salesperson  string
	Email        string
	PickupName   string
	PickupNo     string
	PickupStreet string
	PickupSuburb string
}

type Field struct {
	Name  string
	Value string
}

// Form is the full set of values typed into the booking request form.
type Form struct {
	Date        string
	JobName     string
	Fields      []Field
	TypeOptions []string
	Checkboxes  []string
}

var (
	typeOptions = []string{"Sleepers", "sleepers", "SLEEPERS", "Concrete Sleepers", "Other"}
	checkboxes  = []string{"input_40.1", "input_44.1", "input_27.1", "input_30.1", "input_48.1"}
)

// BuildForm maps a snapshot onto the portal's field names. Fields with an
// empty value are left out. Without a delivery date the booking asks for
// the day after today.
func BuildForm(snap Snapshot, sender Sender, testMode bool, today time.Time) Form {
	date := today.AddDate(0, 0, 1)
	if snap.DeliveryDate != nil {
		date = *snap.DeliveryDate
	}

	jobName := "Wall Quote Order " + snap.OrderNumber
	jobNumber := snap.OrderNumber
	if testMode {
		jobName = "[TEST] " + jobName
		jobNumber = "TEST-" + jobNumber
	}

	streetNo, street := splitStreet(snap.AddressLine1)
	phone := snap.CustomerPhone
	if phone == "" {
		phone = sender.Phone
	}
	email := snap.CustomerEmail
	if email == "" {
		email = "Not provided"
	}
	instructions := snap.Instructions
	if instructions == "" {
		instructions = "Standard delivery"
	}

	fields := []Field{
		{"input_6", jobNumber},
		{"input_37", "Wall Quote Order"},
		{"input_46", fmt.Sprint(snap.TotalItems)},
		{"input_33", snap.TotalWeightKg.Truncate(0).String()},
		{"input_45", comments(snap, sender, testMode)},
		{"input_36", sender.Company},
		{"input_8", sender.Company},
		{"input_9", sender.Phone},
		{"input_10", sender.Salesperson},
		{"input_11", sender.Phone},
		{"input_34", sender.Email},
		{"input_38.1", sender.PickupName},
		{"input_38.3", sender.PickupNo},
		{"input_38.4", sender.PickupStreet},
		{"input_38.5", sender.PickupSuburb},
		{"input_43", sender.Email},
		{"input_28", "WQ-" + snap.OrderNumber},
		{"input_13.1", snap.CustomerName},
		{"input_13.2", streetNo},
		{"input_13.3", street},
		{"input_13.4", strings.Join(nonEmpty(snap.City, snap.State, snap.Postcode), " ")},
		{"input_15", snap.CustomerName},
		{"input_17.1", snap.CustomerName},
		{"input_17.2", phone},
		{"input_17.3", snap.City},
		{"input_17.4", snap.State},
		{"input_31", snap.CustomerName},
		{"input_18", snap.CustomerName},
		{"input_19", phone},
		{"input_20", fmt.Sprintf("Delivery Instructions: %s\nCustomer Email: %s\nOrder Total: $%s\nContact Email: %s",
			instructions, email, snap.TotalAmount.StringFixed(2), sender.Email)},
	}

	kept := fields[:0]
	for _, f := range fields {
		if strings.TrimSpace(f.Value) != "" {
			kept = append(kept, f)
		}
	}

	return Form{
		Date:        date.Format(portalDateLayout),
		JobName:     jobName,
		Fields:      kept,
		TypeOptions: typeOptions,
		Checkboxes:  checkboxes,
	}
}

func comments(snap Snapshot, sender Sender, testMode bool) string {
	var b strings.Builder
	if testMode {
		b.WriteString("*** THIS IS A TEST SUBMISSION ***\nPlease treat this as a test for automation integration.\n\n")
	}
	fmt.Fprintf(&b, "Order: %s\nCustomer: %s\nItems: %d pieces\nTotal Weight: %skg\nContact: %s\n\nItems List:\n",
		snap.OrderNumber, snap.CustomerName, snap.TotalItems, snap.TotalWeightKg.String(), sender.Email)
	for _, item := range snap.Items {
		fmt.Fprintf(&b, "- %dx %s\n", item.Quantity, item.Name)
	}
	if testMode {
		b.WriteString("\n*** END OF TEST SUBMISSION ***")
	}
	return b.String()
}

// splitStreet treats the first word of an address line as the street number.
func splitStreet(line string) (number string, street string) {
	parts := strings.Fields(line)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], line
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
