// Command seeder drives a running API end to end: it logs in, submits a few
// synthetic shots and verifies one of the stored predictions.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hoopsml/shotpredict/internal/models"
)

func main() {
	_ = godotenv.Load(".env")

	var opts seedOptions
	root := &cobra.Command{
		Use:           "seeder",
		Short:         "Submit synthetic shots to a running API and verify one prediction",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return seed(cmd.OutOrStdout(), opts)
		},
	}
	root.Flags().StringVar(&opts.api, "api", "http://localhost:8080", "API base URL")
	root.Flags().StringVar(&opts.username, "user", os.Getenv("DEFAULT_USERNAME"), "Username")
	root.Flags().StringVar(&opts.password, "password", os.Getenv("DEFAULT_PASSWORD"), "Password")
	root.Flags().IntVarP(&opts.count, "count", "n", 5, "Number of shots to submit")

	if err := root.Execute(); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

type seedOptions struct {
	api      string
	username string
	password string
	count    int
}

func seed(out io.Writer, opts seedOptions) error {
	c := &client{base: strings.TrimRight(opts.api, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	if err := c.login(opts.username, opts.password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintln(out, "Logged in as", opts.username)

	for i := 0; i < opts.count; i++ {
		shot := randomShot()
		var resp models.PredictionResponse
		status, err := c.do(http.MethodPost, "/api/v1/predict", shot, &resp)
		if err != nil {
			return fmt.Errorf("predict (%d): %w", status, err)
		}
		fmt.Fprintf(out, "Shot %d: %.0f ft -> prediction=%d p=%.3f id=%d model=%s\n",
			i+1, shot.ShotDistance, resp.Prediction, resp.Probability, resp.PredictionID, resp.ModelVersion)
	}

	var pending struct {
		models.UnverifiedPrediction
		Message string `json:"message"`
	}
	if _, err := c.do(http.MethodGet, "/api/v1/predictions/verify", nil, &pending); err != nil {
		return fmt.Errorf("fetch unverified: %w", err)
	}
	if pending.PredictionID == 0 {
		fmt.Fprintln(out, pending.Message)
		return nil
	}

	trueValue := rand.IntN(2)
	var msg models.MessageResponse
	req := models.VerificationRequest{PredictionID: pending.PredictionID, TrueValue: &trueValue}
	if _, err := c.do(http.MethodPost, "/api/v1/predictions/verify", req, &msg); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Fprintln(out, msg.Message)
	return nil
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) login(username, password string) error {
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := c.http.PostForm(c.base+"/api/v1/auth/login", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var tok models.TokenResponse
	if err := decode(resp, &tok); err != nil {
		return err
	}
	c.token = tok.AccessToken
	return nil
}

func (c *client) do(method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, decode(resp, out)
}

func decode(resp *http.Response, out interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

// randomShot builds a plausible two-point or three-point attempt.
func randomShot() *models.ScoringItem {
	now := time.Now()
	s := &models.ScoringItem{
		Period:               float64(1 + rand.IntN(4)),
		MinutesRemaining:     float64(rand.IntN(12)),
		SecondsRemaining:     float64(rand.IntN(60)),
		ActionTypeFrequency:  0.3,
		TeamNameFrequency:    0.033,
		HomeTeamFrequency:    0.033,
		AwayTeamFrequency:    0.033,
		SeasonRegular:        1,
		GameIDFrequency:      0.0004,
		GameEventIDFrequency: 0.002,
		PlayerIDFrequency:    0.001,
		Year:                 now.Year(),
		Month:                int(now.Month()),
		Day:                  now.Day(),
		DayOfWeek:            (int(now.Weekday()) + 6) % 7, // Monday is 0
		AreaCenter:           1,
	}

	switch d := rand.IntN(30); {
	case d < 8:
		s.ShotDistance, s.ShotType2PT, s.ZoneRestricted, s.RangeLessThan8 = float64(d), 1, 1, 1
	case d < 16:
		s.ShotDistance, s.ShotType2PT, s.ZonePaintNonRA, s.Range8To16 = float64(d), 1, 1, 1
	case d < 24:
		s.ShotDistance, s.ShotType2PT, s.ZoneMidRange, s.Range16To24 = float64(d), 1, 1, 1
	default:
		s.ShotDistance, s.ShotType3PT, s.ZoneAboveTheBreak3, s.Range24Plus = float64(d), 1, 1, 1
	}
	s.YLocation = s.ShotDistance * 10
	return s
}
