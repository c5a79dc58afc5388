package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/table"
	"github.com/letstravel/prospensity/pipeline"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
	"github.com/letstravel/prospensity/preprocessing"
	"github.com/letstravel/prospensity/sklearn/lightgbm"
)

func validInput() CustomerInput {
	return CustomerInput{
		Age:                      35,
		TypeofContact:            "Self Enquiry",
		CityTier:                 1,
		DurationOfPitch:          15,
		Occupation:               "Salaried",
		Gender:                   "Female",
		NumberOfPersonVisiting:   3,
		NumberOfFollowups:        4,
		ProductPitched:           "Basic",
		PreferredPropertyStar:    3,
		MaritalStatus:            "Married",
		NumberOfTrips:            2,
		Passport:                 "Yes",
		PitchSatisfactionScore:   3,
		OwnCar:                   "No",
		NumberOfChildrenVisiting: 1,
		Designation:              "Executive",
		MonthlyIncome:            21000,
	}
}

// fittedPipeline learns "buys iff Executive with a passport" over a subset of the
// engineered features.
func fittedPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	const n = 160
	designations := []string{"Executive", "Manager", "Senior Manager", "AVP"}
	designation := make([]string, n)
	passport := make([]int64, n)
	age := make([]int64, n)
	total := make([]int64, n)
	kids := make([]int64, n)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		designation[i] = designations[i%4]
		passport[i] = int64((i / 4) % 2)
		age[i] = int64(25 + i%30)
		total[i] = int64(1 + i%5)
		kids[i] = int64(i % 2)
		if designation[i] == "Executive" && passport[i] == 1 {
			y.Set(i, 0, 1)
		}
	}
	tbl, err := table.New(
		table.NewStringColumn("Designation", designation, nil),
		table.NewIntColumn("Passport", passport, nil),
		table.NewIntColumn("Age", age, nil),
		table.NewIntColumn("TotalPersonVisiting", total, nil),
		table.NewIntColumn("isChildrenVisiting", kids, nil),
	)
	require.NoError(t, err)

	ct := preprocessing.NewColumnTransformer([]string{"Designation"}, []string{"Age", "TotalPersonVisiting"})
	clf := lightgbm.NewLGBMClassifier().WithNEstimators(30).WithRegAlpha(0.1).WithRegLambda(5).WithScalePosWeight(3)
	p := pipeline.New(ct, clf)
	require.NoError(t, p.Fit(tbl, y))
	return p
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pred, err := NewPredictor(fittedPipeline(t))
	require.NoError(t, err)
	logger, _ := log.NewTestLogger(log.LevelInfo)
	return NewServer(pred).WithLogger(logger)
}

func TestCustomerInputFeatures(t *testing.T) {
	rec := validInput().Features()

	assert.Equal(t, int64(4), rec["TotalPersonVisiting"])
	assert.Equal(t, int64(1), rec["isChildrenVisiting"])
	assert.Equal(t, int64(1), rec["Passport"])
	assert.Equal(t, int64(0), rec["OwnCar"])
	assert.NotContains(t, rec, "NumberOfPersonVisiting")
	assert.NotContains(t, rec, "NumberOfChildrenVisiting")
	assert.Len(t, rec, 18)

	in := validInput()
	in.NumberOfChildrenVisiting = 0
	in.NumberOfPersonVisiting = 2
	rec = in.Features()
	assert.Equal(t, int64(2), rec["TotalPersonVisiting"])
	assert.Equal(t, int64(0), rec["isChildrenVisiting"])
}

func TestCustomerInputValidate(t *testing.T) {
	require.NoError(t, validInput().Validate())

	tests := []struct {
		field  string
		mutate func(in *CustomerInput)
	}{
		{"Age", func(in *CustomerInput) { in.Age = 121 }},
		{"Age", func(in *CustomerInput) { in.Age = -1 }},
		{"TypeofContact", func(in *CustomerInput) { in.TypeofContact = "Walk In" }},
		{"CityTier", func(in *CustomerInput) { in.CityTier = 4 }},
		{"DurationOfPitch", func(in *CustomerInput) { in.DurationOfPitch = -5 }},
		{"Occupation", func(in *CustomerInput) { in.Occupation = "Free Lancer" }},
		{"Gender", func(in *CustomerInput) { in.Gender = "Fe Male" }},
		{"NumberOfPersonVisiting", func(in *CustomerInput) { in.NumberOfPersonVisiting = -1 }},
		{"NumberOfFollowups", func(in *CustomerInput) { in.NumberOfFollowups = -1 }},
		{"ProductPitched", func(in *CustomerInput) { in.ProductPitched = "Premium" }},
		{"PreferredPropertyStar", func(in *CustomerInput) { in.PreferredPropertyStar = 2 }},
		{"MaritalStatus", func(in *CustomerInput) { in.MaritalStatus = "Single" }},
		{"NumberOfTrips", func(in *CustomerInput) { in.NumberOfTrips = -2 }},
		{"Passport", func(in *CustomerInput) { in.Passport = "1" }},
		{"PitchSatisfactionScore", func(in *CustomerInput) { in.PitchSatisfactionScore = 0 }},
		{"OwnCar", func(in *CustomerInput) { in.OwnCar = "" }},
		{"NumberOfChildrenVisiting", func(in *CustomerInput) { in.NumberOfChildrenVisiting = -1 }},
		{"Designation", func(in *CustomerInput) { in.Designation = "CEO" }},
		{"MonthlyIncome", func(in *CustomerInput) { in.MonthlyIncome = -100 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			var ve *perrors.ValidationError
			require.ErrorAs(t, in.Validate(), &ve)
			assert.Equal(t, tt.field, ve.ParamName)
		})
	}
}

func TestPredictor(t *testing.T) {
	pred, err := NewPredictor(fittedPipeline(t))
	require.NoError(t, err)

	resp, err := pred.Predict(validInput().Features())
	require.NoError(t, err)
	assert.Equal(t, LabelLikely, resp.Prediction)
	assert.InDelta(t, 1.0, resp.Probabilities[ProbWillBuy]+resp.Probabilities[ProbWillNotBuy], 1e-12)
	assert.Equal(t, resp.Probabilities[ProbWillBuy], resp.Confidence)

	in := validInput()
	in.Passport = "No"
	resp, err = pred.Predict(in.Features())
	require.NoError(t, err)
	assert.Equal(t, LabelNotLikely, resp.Prediction)
	assert.Equal(t, resp.Probabilities[ProbWillNotBuy], resp.Confidence)
	assert.GreaterOrEqual(t, resp.Confidence, 0.5)

	// unseen level encodes as all zeros
	in.Designation = "VP"
	_, err = pred.Predict(in.Features())
	assert.NoError(t, err)

	rec := validInput().Features()
	delete(rec, "Age")
	_, err = pred.Predict(rec)
	var ve *perrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	rec = validInput().Features()
	rec["Age"] = []int{1}
	_, err = pred.Predict(rec)
	assert.ErrorAs(t, err, &ve)
}

func TestNewPredictorRequiresFittedPipeline(t *testing.T) {
	_, err := NewPredictor(nil)
	var nf *perrors.NotFittedError
	assert.ErrorAs(t, err, &nf)

	p := pipeline.New(preprocessing.NewColumnTransformer(nil, []string{"Age"}), lightgbm.NewLGBMClassifier())
	_, err = NewPredictor(p)
	assert.ErrorAs(t, err, &nf)

	_, err = LoadPredictor(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestLoadPredictor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, fittedPipeline(t).Save(path))

	pred, err := LoadPredictor(path)
	require.NoError(t, err)
	resp, err := pred.Predict(validInput().Features())
	require.NoError(t, err)
	assert.Equal(t, LabelLikely, resp.Prediction)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t).WithVersion("2.1.0")

	rec := doJSON(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")

	rec = doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, HealthResponse{Status: "ok", Version: "2.1.0", ModelLoaded: true}, health)

	rec = doJSON(t, s, http.MethodPost, "/predict", validInput())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, LabelLikely, resp.Prediction)
	assert.Contains(t, resp.Probabilities, ProbWillBuy)

	rec = doJSON(t, s, http.MethodGet, "/predict", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerPredictBadRequests(t *testing.T) {
	s := newTestServer(t)

	bad := validInput()
	bad.CityTier = 7
	tests := []struct {
		name string
		body any
	}{
		{"invalid field", bad},
		{"malformed json", `{"Age": `},
		{"unknown field", inputMap(t, func(m map[string]any) { m["Salary"] = 1 })},
		{"wrong type", inputMap(t, func(m map[string]any) { m["Age"] = "thirty" })},
		{"null field", inputMap(t, func(m map[string]any) { m["CityTier"] = nil })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/predict", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

// inputMap returns validInput as a generic JSON object after applying mutate.
func inputMap(t *testing.T, mutate func(map[string]any)) map[string]any {
	t.Helper()
	data, err := json.Marshal(validInput())
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	mutate(m)
	return m
}

func TestServerPredictRequiresEveryField(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		drop    []string
		missing string
	}{
		{"single numeric", []string{"Age"}, "Age"},
		{"zero valued numerics", []string{"Age", "NumberOfTrips", "MonthlyIncome"}, "Age, NumberOfTrips, MonthlyIncome"},
		{"categorical", []string{"Designation"}, "Designation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := inputMap(t, func(m map[string]any) {
				for _, f := range tt.drop {
					delete(m, f)
				}
			})
			rec := doJSON(t, s, http.MethodPost, "/predict", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp["error"], "'"+tt.missing+"'")
			assert.Contains(t, resp["error"], "required field missing")
		})
	}
}

func TestDecodeCustomerInput(t *testing.T) {
	data, err := json.Marshal(validInput())
	require.NoError(t, err)
	in, err := DecodeCustomerInput(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, validInput(), in)

	_, err = DecodeCustomerInput(strings.NewReader(`{"MonthlyIncome": 20000}`))
	var verr *perrors.ValidationError
	require.True(t, perrors.As(err, &verr))
	assert.NotContains(t, verr.ParamName, "MonthlyIncome")
	assert.Contains(t, verr.ParamName, "Age")
	assert.Len(t, strings.Split(verr.ParamName, ", "), len(requiredFields)-1)

	_, err = DecodeCustomerInput(strings.NewReader(`[1, 2]`))
	assert.Error(t, err)
}

func TestServerWithoutModel(t *testing.T) {
	s := NewServer(nil)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.False(t, health.ModelLoaded)

	rec = doJSON(t, s, http.MethodPost, "/predict", validInput())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "model not loaded")
}

func TestServerPredictionFailure(t *testing.T) {
	// a pipeline that needs a column the request never provides
	const n = 40
	vals := make([]int64, n)
	y := mat.NewDense(n, 1, nil)
	for i := range vals {
		vals[i] = int64(i)
		if i%2 == 0 {
			y.Set(i, 0, 1)
		}
	}
	tbl, err := table.New(table.NewIntColumn("LoyaltyPoints", vals, nil))
	require.NoError(t, err)
	p := pipeline.New(preprocessing.NewColumnTransformer(nil, []string{"LoyaltyPoints"}), lightgbm.NewLGBMClassifier().WithNEstimators(2))
	require.NoError(t, p.Fit(tbl, y))
	pred, err := NewPredictor(p)
	require.NoError(t, err)

	rec := doJSON(t, NewServer(pred), http.MethodPost, "/predict", validInput())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "LoyaltyPoints")
}

func TestClientPredict(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t))
	defer ts.Close()

	resp, err := NewClient(ts.URL+"/predict").Predict(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, LabelLikely, resp.Prediction)

	bad := validInput()
	bad.Gender = "Other"
	_, err = NewClient(ts.URL+"/predict").Predict(context.Background(), bad)
	var ue *perrors.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.Contains(t, ue.Body, "Gender")
	assert.True(t, perrors.IsTransient(err))
}

func TestClientUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			writeErrorResponse(w, http.StatusInternalServerError, "boom")
		}, http.StatusInternalServerError},
		{"not json", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<html>proxy</html>"))
		}, http.StatusOK},
		{"no prediction", func(w http.ResponseWriter, _ *http.Request) {
			writeJSONResponse(w, http.StatusOK, map[string]string{"error": "model exploded"})
		}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()
			_, err := NewClient(ts.URL).Predict(context.Background(), validInput())
			var ue *perrors.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.status, ue.StatusCode)
		})
	}

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	_, err := NewClient(url).Predict(context.Background(), validInput())
	var ue *perrors.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 0, ue.StatusCode)
}

func TestFormatResponse(t *testing.T) {
	out := FormatResponse(&PredictionResponse{
		Prediction: LabelNotLikely,
		Confidence: 0.8123,
		Probabilities: map[string]float64{
			ProbWillBuy:    0.1877,
			ProbWillNotBuy: 0.8123,
		},
	})
	assert.Contains(t, out, "Prediction: Not Likely To Buy")
	assert.Contains(t, out, "Confidence: 0.81")
	assert.Less(t, strings.Index(out, ProbWillNotBuy), strings.Index(out, ProbWillBuy+":"))
	assert.Contains(t, out, "81.23%")
}
