package fee

import (
	"math"
	"strconv"

	"github.com/rtemis/reimbursement/core"
)

// Fees flattens the education details of the school into fee entries, in declaration order.
func (s School) Fees() SchoolFees {
	fees := make(SchoolFees, 0, len(s.EducationDetails))
	for _, ed := range s.EducationDetails {
		entry := SchoolFeeEntry{
			SchoolFeeKey: SchoolFeeKey{EducationType: ed.EducationType, Medium: ed.Medium, EducationLevel: ed.EducationLevel},
			Fees:         make(map[int]float64, len(ed.Fees)),
		}
		for _, cf := range ed.Fees {
			entry.Fees[cf.Class] = cf.Amount
		}
		fees = append(fees, entry)
	}
	return fees
}

// GenderPriorities returns the education types to look fees up in for a gender, in priority order.
// educationTypes are the configured types, e.g. [boys girls co-ed]:
// a boy resolves to [boys co-ed], a girl to [girls co-ed] and a transgender student to [co-ed girls boys].
func GenderPriorities(gender string, educationTypes []string) []string {
	var excluded string
	switch gender {
	case GenderBoy:
		excluded = "girls"
	case GenderGirl:
		excluded = "boys"
	case GenderTransgender:
		reversed := make([]string, 0, len(educationTypes))
		for i := len(educationTypes) - 1; i >= 0; i-- {
			reversed = append(reversed, educationTypes[i])
		}
		return reversed
	default:
		return []string{}
	}

	types := make([]string, 0, len(educationTypes))
	for _, t := range educationTypes {
		if t != excluded {
			types = append(types, t)
		}
	}
	return types
}

// SchoolTuitionFee finds the fee a school declared for a class, following the gender priorities.
// The first education type (in priority order) declaring the medium and class wins.
func SchoolTuitionFee(fees SchoolFees, priorities []string, medium string, class int) (float64, SchoolFeeKey, bool) {
	for _, eduType := range priorities {
		for _, entry := range fees {
			if entry.EducationType != eduType || entry.Medium != medium {
				continue
			}
			if amount, ok := entry.Fees[class]; ok {
				return amount, entry.SchoolFeeKey, true
			}
		}
	}
	return 0, SchoolFeeKey{}, false
}

// EducationLevel returns the education level of the first fee entry matching the gender priorities.
func EducationLevel(fees SchoolFees, priorities []string) string {
	for _, eduType := range priorities {
		for _, entry := range fees {
			if entry.EducationType == eduType {
				return entry.EducationLevel
			}
		}
	}
	return ""
}

// GovernmentFee returns the government fee entry of an education level.
func GovernmentFee(entries []GovernmentFeeEntry, educationLevel string) (GovernmentFeeEntry, bool) {
	if educationLevel == "" {
		return GovernmentFeeEntry{}, false
	}
	for _, entry := range entries {
		if entry.EducationLevel == educationLevel {
			return entry, true
		}
	}
	return GovernmentFeeEntry{}, false
}

// AdditionalFeeAmounts picks the selected additional fees out of a government fee entry. Missing ones are 0.
func AdditionalFeeAmounts(entry GovernmentFeeEntry, selected []string) []FeeAmount {
	amounts := make([]FeeAmount, 0, len(selected))
	for _, name := range selected {
		amounts = append(amounts, FeeAmount{Name: name, Amount: entry.AdditionalFees[name]})
	}
	return amounts
}

// RowTotal is the reimbursable amount of a student: the lesser of the school and government
// tuition fees, plus the additional fees.
func RowTotal(schoolFee, governmentFee float64, additional []FeeAmount) float64 {
	total := math.Min(schoolFee, governmentFee)
	for _, a := range additional {
		total += a.Amount
	}
	return total
}

func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// ParseAmount parses a formatted amount, 0 when invalid.
func ParseAmount(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// ClassList returns the class keys a payment head reimburses. An empty list means no restriction.
// The central head covers the classes from the configured minimum up to the class labelled as the last one;
// the state head covers the configured state class list when enabled.
func ClassList(approvalAuthority string, school core.SchoolSettings, reimbursement core.ReimbursementSettings) []int {
	classes := make([]int, 0)
	switch approvalAuthority {
	case core.CentralHead:
		for _, cl := range school.ClassLevels {
			if cl.Key < school.CentralMinClass {
				continue
			}
			classes = append(classes, cl.Key)
			if cl.Label == school.CentralLastClass {
				break
			}
		}
	case core.StateHead:
		if reimbursement.PaymentHeads.EnableStateHead {
			classes = append(classes, reimbursement.PaymentHeads.StateClassList...)
		}
	}
	return classes
}

// ReportClasses intersects the configured classes with the class list of the payment head.
func ReportClasses(approvalAuthority string, school core.SchoolSettings, reimbursement core.ReimbursementSettings) []int {
	all := school.ClassKeys()
	selected := ClassList(approvalAuthority, school, reimbursement)
	if len(selected) == 0 {
		return all
	}
	classes := make([]int, 0, len(selected))
	for _, key := range all {
		if core.ContainsInt(selected, key) {
			classes = append(classes, key)
		}
	}
	return classes
}

// TableHeading returns the report columns, with one column per selected additional fee.
func TableHeading(additionalFees []string) []Column {
	header := []Column{
		{Key: "serial_number", Label: "SNO"},
		{Key: "student_name", Label: "Student Name"},
		{Key: "parent_name", Label: "Guardian Name"},
		{Key: "class", Label: "Pre-session Class"},
		{Key: "application_type", Label: "New/Old"},
		{Key: "medium", Label: "Medium"},
		{Key: "school_fees", Label: "School Tuition Fees (₹)"},
	}
	for _, fee := range additionalFees {
		if fee == "" {
			continue
		}
		header = append(header, Column{Key: fee, Label: core.UCFirst(fee) + " Fees (₹)"})
	}
	return append(header,
		Column{Key: "government_fees", Label: "Govt Fees (₹)"},
		Column{Key: "total", Label: "Total (₹)"},
	)
}
