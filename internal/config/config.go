package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations and costs.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    JWTSecret    string // secret used to sign JWTs
    AccessTTLMin int    // access token time‑to‑live in minutes
    BcryptCost   int    // bcrypt cost for password hashing

    RabbitURL string // broker address, empty falls back to RABBITMQ_URL/AMQP_URL
    Currency  string // payment currency, defaults to XOF

    ReservationTTL    time.Duration // lifetime of a temporary reservation
    ExpireInterval    time.Duration // cadence of the stale reservation sweep
    ReminderInterval  time.Duration // cadence of the reminder job
    ReminderDaysAhead int           // remind this many days before the booking

    Orange OrangeCreds
    MTN    MTNCreds
    Wave   WaveCreds
}

// OrangeCreds holds the Orange Money Web Payment settings.
type OrangeCreds struct {
    BaseURL     string
    MerchantKey string
    AuthToken   string
    CallbackURL string
}

// MTNCreds holds the MTN MoMo Collections settings.
type MTNCreds struct {
    BaseURL         string
    SubscriptionKey string
    AuthToken       string
    TargetEnv       string
}

// WaveCreds holds the Wave checkout settings.
type WaveCreds struct {
    BaseURL string
    APIKey  string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Provider credentials
// are optional so local development can run without live provider access.
func Load() Config {
    return Config{
        Env:          must("APP_ENV"),      // environment (dev/test/prod)
        Port:         must("APP_PORT"),     // port to bind the HTTP server
        DBUser:       must("DB_USER"),      // database user
        DBPass:       os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:       must("DB_HOST"),      // database host
        DBPort:       must("DB_PORT"),      // database port
        DBName:       must("DB_NAME"),      // database name
        JWTSecret:    must("JWT_SECRET"),   // secret used for signing JWTs
        AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
        BcryptCost:   mustInt("BCRYPT_COST"),

        RabbitURL: os.Getenv("RABBITMQ_URL"),
        Currency:  getenv("PAYMENT_CURRENCY", "XOF"),

        ReservationTTL:    minutes("RESERVATION_TTL_MIN", 15),
        ExpireInterval:    minutes("EXPIRE_INTERVAL_MIN", 5),
        ReminderInterval:  minutes("REMINDER_INTERVAL_MIN", 60),
        ReminderDaysAhead: intenv("REMINDER_DAYS_AHEAD", 1),

        Orange: OrangeCreds{
            BaseURL:     getenv("ORANGE_BASE_URL", "https://api.orange.com/orange-money-webpay/v1"),
            MerchantKey: os.Getenv("ORANGE_MERCHANT_KEY"),
            AuthToken:   os.Getenv("ORANGE_AUTH_TOKEN"),
            CallbackURL: os.Getenv("ORANGE_CALLBACK_URL"),
        },
        MTN: MTNCreds{
            BaseURL:         getenv("MTN_BASE_URL", "https://api.mtn.com/collection/v1_0"),
            SubscriptionKey: os.Getenv("MTN_SUBSCRIPTION_KEY"),
            AuthToken:       os.Getenv("MTN_AUTH_TOKEN"),
            TargetEnv:       getenv("MTN_TARGET_ENV", "sandbox"),
        },
        Wave: WaveCreds{
            BaseURL: getenv("WAVE_BASE_URL", "https://api.wave.com/v1"),
            APIKey:  os.Getenv("WAVE_API_KEY"),
        },
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// intenv returns the variable parsed as int, or a default when unset
// or malformed.
func intenv(key string, def int) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        log.Printf("invalid int for %s: %q, using %d", key, v, def)
        return def
    }
    return n
}

// minutes reads an integer variable and returns it as a duration in
// minutes, with a default.
func minutes(key string, def int) time.Duration {
    return time.Duration(intenv(key, def)) * time.Minute
}
