package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/api"
	"github.com/hackgods/vaccination-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Patients      int
	BookingRatio  float64
	PaymentRatio  float64
	ReadRatio     float64
	Date          string
	AdminEmail    string
	AdminPassword string
}

type patient struct {
	id    string
	token string
}

type booked struct {
	appointmentID string
	patient       patient
}

// DataPool holds what setup created and what the workers book along the way.
type DataPool struct {
	Patients  []patient
	Hospitals []string
	Vaccines  []string

	mu     sync.Mutex
	booked []booked
}

func (dp *DataPool) AddBooking(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, b)
}

// TakeBooking removes and returns a random unpaid booking.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.booked) == 0 {
		return booked{}, false
	}
	idx := rng.Intn(len(dp.booked))
	b := dp.booked[idx]
	dp.booked[idx] = dp.booked[len(dp.booked)-1]
	dp.booked = dp.booked[:len(dp.booked)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Race     OperationMetrics
	Booking  OperationMetrics
	Initiate OperationMetrics
	Confirm  OperationMetrics
	Reads    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  zerolog.Logger
	metrics Metrics
}

func main() {
	_ = godotenv.Load()
	logger := logging.New("simulate", getEnv("LOG_LEVEL", "info"), getEnv("APP_ENV", "dev"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Str("api", cfg.APIBaseURL).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("patients", cfg.Patients).
		Str("date", cfg.Date).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := sim.Setup(setupCtx); err != nil {
		logger.Fatal().Err(err).Msg("setup failed")
	}

	sim.Race(setupCtx)
	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		Patients:      getInt("SIM_PATIENTS", 40),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		PaymentRatio:  getFloat("SIM_PAYMENT_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		Date:          getEnv("SIM_DATE", time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")),
		AdminEmail:    getEnv("SIM_ADMIN_EMAIL", "admin@vax.local"),
		AdminPassword: getEnv("SIM_ADMIN_PASSWORD", "Admin@123"),
	}

	total := cfg.BookingRatio + cfg.PaymentRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.PaymentRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients < 2 {
		return fmt.Errorf("SIM_PATIENTS must be >= 2")
	}
	if _, err := time.Parse("2006-01-02", cfg.Date); err != nil {
		return fmt.Errorf("SIM_DATE must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// Setup registers fresh patients, has the admin approve them and loads the catalog.
func (s *Simulator) Setup(ctx context.Context) error {
	var admin api.AuthResponse
	status, err := s.call(ctx, http.MethodPost, "/auth/login", "", api.LoginRequest{
		Email:    s.config.AdminEmail,
		Password: s.config.AdminPassword,
	}, &admin)
	if err != nil || status != http.StatusOK {
		return fmt.Errorf("admin login: status=%d err=%v", status, err)
	}

	for i := 0; i < s.config.Patients; i++ {
		var reg api.AuthResponse
		status, err := s.call(ctx, http.MethodPost, "/auth/register", "", api.RegisterRequest{
			Email:    fmt.Sprintf("sim-%d-%s", time.Now().UnixNano(), gofakeit.Email()),
			Password: "Patient@123",
			Name:     gofakeit.Name(),
			Gender:   gofakeit.RandomString([]string{"male", "female", "other"}),
			Contact:  gofakeit.Phone(),
		}, &reg)
		if err != nil || status != http.StatusCreated {
			return fmt.Errorf("register patient: status=%d err=%v", status, err)
		}

		status, err = s.call(ctx, http.MethodPatch, "/admin/patients/"+reg.User.ID+"/approve", admin.Token, nil, nil)
		if err != nil || status != http.StatusOK {
			return fmt.Errorf("approve patient: status=%d err=%v", status, err)
		}
		s.pool.Patients = append(s.pool.Patients, patient{id: reg.User.ID, token: reg.Token})
	}

	var hospitals api.HospitalListResponse
	if _, err := s.call(ctx, http.MethodGet, "/hospitals", "", nil, &hospitals); err != nil {
		return fmt.Errorf("list hospitals: %w", err)
	}
	for _, h := range hospitals.Hospitals {
		s.pool.Hospitals = append(s.pool.Hospitals, h.ID)
	}

	var vaccines api.VaccineListResponse
	if _, err := s.call(ctx, http.MethodGet, "/vaccines", "", nil, &vaccines); err != nil {
		return fmt.Errorf("list vaccines: %w", err)
	}
	for _, v := range vaccines.Vaccines {
		s.pool.Vaccines = append(s.pool.Vaccines, v.ID)
	}

	if len(s.pool.Hospitals) == 0 || len(s.pool.Vaccines) == 0 {
		return fmt.Errorf("catalog is empty, run the seed first")
	}
	s.logger.Info().
		Int("patients", len(s.pool.Patients)).
		Int("hospitals", len(s.pool.Hospitals)).
		Int("vaccines", len(s.pool.Vaccines)).
		Msg("setup complete")
	return nil
}

// Race sends every patient at the same free slot at once. Exactly one should win.
func (s *Simulator) Race(ctx context.Context) {
	hospitalID := s.pool.Hospitals[0]
	var avail api.AvailabilityResponse
	if _, err := s.call(ctx, http.MethodGet, availabilityPath(hospitalID, s.config.Date), "", nil, &avail); err != nil || len(avail.Available) == 0 {
		s.logger.Warn().Err(err).Msg("no free slot for the race, skipping")
		return
	}
	startAt := avail.Available[0].StartAt

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, p := range s.pool.Patients {
		wg.Add(1)
		go func(p patient) {
			defer wg.Done()
			<-start
			s.book(ctx, &s.metrics.Race, p, hospitalID, s.pool.Vaccines[0], startAt)
		}(p)
	}
	close(start)
	wg.Wait()

	won := atomic.LoadInt64(&s.metrics.Race.Success)
	ev := s.logger.Info()
	if won != 1 {
		ev = s.logger.Error()
	}
	ev.Str("start_at", startAt).
		Int64("created", won).
		Int64("conflicts", atomic.LoadInt64(&s.metrics.Race.Conflict)).
		Msg("slot race finished")
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info().Msg("load phase complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.PaymentRatio:
			s.doPayment(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	hospitalID := s.pool.Hospitals[rng.Intn(len(s.pool.Hospitals))]
	vaccineID := s.pool.Vaccines[rng.Intn(len(s.pool.Vaccines))]

	// 09:00 to 17:30 on the half hour.
	day, _ := time.Parse("2006-01-02", s.config.Date)
	startAt := day.Add(9*time.Hour + time.Duration(rng.Intn(18))*30*time.Minute).Format(time.RFC3339)

	s.book(ctx, &s.metrics.Booking, p, hospitalID, vaccineID, startAt)
}

func (s *Simulator) book(ctx context.Context, om *OperationMetrics, p patient, hospitalID, vaccineID, startAt string) {
	start := time.Now()
	var appt api.AppointmentResponse
	status, err := s.call(ctx, http.MethodPost, "/appointments", p.token, api.BookAppointmentRequest{
		HospitalID: hospitalID,
		VaccineID:  vaccineID,
		StartAt:    startAt,
	}, &appt)
	if err != nil && ctx.Err() != nil {
		return
	}

	success := err == nil && status == http.StatusCreated
	if success {
		s.pool.AddBooking(booked{appointmentID: appt.ID, patient: p})
	}
	om.Record(time.Since(start), success, status == http.StatusConflict)
}

func (s *Simulator) doPayment(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	var started api.InitiatePaymentResponse
	status, err := s.call(ctx, http.MethodPost, "/payments/initiate", b.patient.token,
		api.InitiatePaymentRequest{AppointmentID: b.appointmentID}, &started)
	if err != nil && ctx.Err() != nil {
		return
	}
	ok = err == nil && status == http.StatusCreated
	s.metrics.Initiate.Record(time.Since(start), ok, status == http.StatusConflict)
	if !ok {
		return
	}

	start = time.Now()
	status, err = s.call(ctx, http.MethodPost, "/payments/confirm", b.patient.token,
		api.ConfirmPaymentRequest{Reference: started.Payment.Reference}, nil)
	if err != nil && ctx.Err() != nil {
		return
	}
	s.metrics.Confirm.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	path := "/appointments/my"
	token := ""
	if rng.Intn(2) == 0 {
		path = availabilityPath(s.pool.Hospitals[rng.Intn(len(s.pool.Hospitals))], s.config.Date)
	} else {
		token = s.pool.Patients[rng.Intn(len(s.pool.Patients))].token
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, path, token, nil, nil)
	if err != nil && ctx.Err() != nil {
		return
	}
	s.metrics.Reads.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

// call sends a JSON request and decodes a 2xx body into out when out is non-nil.
func (s *Simulator) call(ctx context.Context, method, path, token string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func availabilityPath(hospitalID, date string) string {
	q := url.Values{}
	q.Set("hospitalId", hospitalID)
	q.Set("date", date)
	return "/availability?" + q.Encode()
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s  Workers: %d  Patients: %d  Date: %s\n\n",
		s.config.Duration, s.config.Workers, s.config.Patients, s.config.Date)

	printOperationReport("Slot race", &s.metrics.Race)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Payment initiate", &s.metrics.Initiate)
	printOperationReport("Payment confirm", &s.metrics.Confirm)
	printOperationReport("Reads", &s.metrics.Reads)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
