package serve

import (
	"bytes"
	"encoding/json"
	"io"
	"reflect"
	"slices"
	"strings"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// CustomerInput is the raw customer profile accepted by the prediction endpoint.
type CustomerInput struct {
	Age                      int    `json:"Age"`
	TypeofContact            string `json:"TypeofContact"`
	CityTier                 int    `json:"CityTier"`
	DurationOfPitch          int    `json:"DurationOfPitch"`
	Occupation               string `json:"Occupation"`
	Gender                   string `json:"Gender"`
	NumberOfPersonVisiting   int    `json:"NumberOfPersonVisiting"`
	NumberOfFollowups        int    `json:"NumberOfFollowups"`
	ProductPitched           string `json:"ProductPitched"`
	PreferredPropertyStar    int    `json:"PreferredPropertyStar"`
	MaritalStatus            string `json:"MaritalStatus"`
	NumberOfTrips            int    `json:"NumberOfTrips"`
	Passport                 string `json:"Passport"`
	PitchSatisfactionScore   int    `json:"PitchSatisfactionScore"`
	OwnCar                   string `json:"OwnCar"`
	NumberOfChildrenVisiting int    `json:"NumberOfChildrenVisiting"`
	Designation              string `json:"Designation"`
	MonthlyIncome            int    `json:"MonthlyIncome"`
}

var (
	contactTypes  = []string{"Self Enquiry", "Company Invited"}
	occupations   = []string{"Salaried", "Small Business", "Large Business", "Other"}
	genders       = []string{"Male", "Female"}
	products      = []string{"Basic", "Deluxe", "Standard", "Super Deluxe", "King"}
	maritalStatus = []string{"Married", "Unmarried", "Divorced"}
	yesNo         = []string{"Yes", "No"}
	designations  = []string{"Executive", "Manager", "Senior Manager", "AVP", "VP"}
	cityTiers     = []int{1, 2, 3}
	propertyStars = []int{3, 4, 5}
)

// requiredFields lists the JSON keys every request body must carry.
var requiredFields = func() []string {
	t := reflect.TypeOf(CustomerInput{})
	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		fields = append(fields, t.Field(i).Tag.Get("json"))
	}
	return fields
}()

// DecodeCustomerInput reads one JSON customer record. Unknown keys are rejected and
// every field must be present and non-null.
func DecodeCustomerInput(r io.Reader) (CustomerInput, error) {
	var in CustomerInput
	data, err := io.ReadAll(r)
	if err != nil {
		return in, perrors.Wrap(err, "invalid request body")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return in, perrors.Wrap(err, "invalid request body")
	}
	var missing []string
	for _, field := range requiredFields {
		v, ok := raw[field]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return in, perrors.NewValidationError(strings.Join(missing, ", "), "required field missing", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, perrors.Wrap(err, "invalid request body")
	}
	return in, nil
}

type check struct {
	field  string
	ok     bool
	reason string
	value  interface{}
}

// Validate reports the first field outside its allowed range or level set.
func (in CustomerInput) Validate() error {
	checks := []check{
		{"Age", in.Age >= 0 && in.Age <= 120, "must be between 0 and 120", in.Age},
		{"TypeofContact", slices.Contains(contactTypes, in.TypeofContact), "must be one of Self Enquiry, Company Invited", in.TypeofContact},
		{"CityTier", slices.Contains(cityTiers, in.CityTier), "must be 1, 2 or 3", in.CityTier},
		{"DurationOfPitch", in.DurationOfPitch >= 0, "must be non-negative", in.DurationOfPitch},
		{"Occupation", slices.Contains(occupations, in.Occupation), "must be one of Salaried, Small Business, Large Business, Other", in.Occupation},
		{"Gender", slices.Contains(genders, in.Gender), "must be Male or Female", in.Gender},
		{"NumberOfPersonVisiting", in.NumberOfPersonVisiting >= 0, "must be non-negative", in.NumberOfPersonVisiting},
		{"NumberOfFollowups", in.NumberOfFollowups >= 0, "must be non-negative", in.NumberOfFollowups},
		{"ProductPitched", slices.Contains(products, in.ProductPitched), "must be one of Basic, Deluxe, Standard, Super Deluxe, King", in.ProductPitched},
		{"PreferredPropertyStar", slices.Contains(propertyStars, in.PreferredPropertyStar), "must be 3, 4 or 5", in.PreferredPropertyStar},
		{"MaritalStatus", slices.Contains(maritalStatus, in.MaritalStatus), "must be one of Married, Unmarried, Divorced", in.MaritalStatus},
		{"NumberOfTrips", in.NumberOfTrips >= 0, "must be non-negative", in.NumberOfTrips},
		{"Passport", slices.Contains(yesNo, in.Passport), "must be Yes or No", in.Passport},
		{"PitchSatisfactionScore", in.PitchSatisfactionScore >= 1 && in.PitchSatisfactionScore <= 5, "must be between 1 and 5", in.PitchSatisfactionScore},
		{"OwnCar", slices.Contains(yesNo, in.OwnCar), "must be Yes or No", in.OwnCar},
		{"NumberOfChildrenVisiting", in.NumberOfChildrenVisiting >= 0, "must be non-negative", in.NumberOfChildrenVisiting},
		{"Designation", slices.Contains(designations, in.Designation), "must be one of Executive, Manager, Senior Manager, AVP, VP", in.Designation},
		{"MonthlyIncome", in.MonthlyIncome >= 0, "must be non-negative", in.MonthlyIncome},
	}
	for _, c := range checks {
		if !c.ok {
			return perrors.NewValidationError(c.field, c.reason, c.value)
		}
	}
	return nil
}

// Record is one engineered feature row keyed by column name. Values are int64 or
// string.
type Record map[string]interface{}

// Features applies the training-time feature engineering to a validated input:
// Yes/No flags become 1/0 and the visitor counts are replaced by
// TotalPersonVisiting and isChildrenVisiting.
func (in CustomerInput) Features() Record {
	children := int64(in.NumberOfChildrenVisiting)
	hasChildren := int64(0)
	if children > 0 {
		hasChildren = 1
	}
	return Record{
		"Age":                    int64(in.Age),
		"TypeofContact":          in.TypeofContact,
		"CityTier":               int64(in.CityTier),
		"DurationOfPitch":        int64(in.DurationOfPitch),
		"Occupation":             in.Occupation,
		"Gender":                 in.Gender,
		"NumberOfFollowups":      int64(in.NumberOfFollowups),
		"ProductPitched":         in.ProductPitched,
		"PreferredPropertyStar":  int64(in.PreferredPropertyStar),
		"MaritalStatus":          in.MaritalStatus,
		"NumberOfTrips":          int64(in.NumberOfTrips),
		"Passport":               yesNoFlag(in.Passport),
		"PitchSatisfactionScore": int64(in.PitchSatisfactionScore),
		"OwnCar":                 yesNoFlag(in.OwnCar),
		"Designation":            in.Designation,
		"MonthlyIncome":          int64(in.MonthlyIncome),
		"TotalPersonVisiting":    int64(in.NumberOfPersonVisiting) + children,
		"isChildrenVisiting":     hasChildren,
	}
}

func yesNoFlag(v string) int64 {
	if v == "Yes" {
		return 1
	}
	return 0
}
