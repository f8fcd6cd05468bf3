package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/securevault/internal/metrics"
)

// RequestLog writes one zerolog line per request, at error level for 5xx and
// warn for 4xx, and feeds the request metrics.
func RequestLog(m *metrics.Metrics) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURIPath:   true,
        LogRoutePath: true,
        LogStatus:    true,
        LogRemoteIP:  true,
        LogLatency:   true,
        LogError:     true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            route := v.RoutePath
            if route == "" {
                route = "unmatched"
            }
            m.RecordRequest(v.Method, route, v.Status, v.Latency.Seconds())

            ev := log.WithLevel(levelForStatus(v.Status)).
                Str("method", v.Method).
                Str("path", v.URIPath).
                Int("status", v.Status).
                Str("remote_ip", v.RemoteIP).
                Dur("latency", v.Latency.Round(time.Microsecond))
            if id := UserID(c); id != "" {
                ev = ev.Str("user_id", id)
            }
            if v.Error != nil {
                ev = ev.Err(v.Error)
            }
            ev.Msg("http request")
            return nil
        },
    })
}

func levelForStatus(code int) zerolog.Level {
    switch {
    case code >= 500:
        return zerolog.ErrorLevel
    case code >= 400:
        return zerolog.WarnLevel
    default:
        return zerolog.InfoLevel
    }
}
