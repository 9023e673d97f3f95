// ABOUTME: Annotated starter configuration written by the init subcommand
// ABOUTME: Kept in sync with the defaults applied by Load

package config

// Example is a starter YAML configuration.
const Example = `# coven-botkit configuration

server:
  http_addr: "0.0.0.0:3978"
  grpc_addr: "0.0.0.0:50051"   # grpc health service, empty to disable
  shutdown_timeout: "10s"
  rate_limit:
    rps: 0                      # per conversation, 0 disables
    burst: 0

bot:
  app_id: "${COVEN_BOTKIT_APP_ID}"
  app_password: "${COVEN_BOTKIT_APP_PASSWORD}"
  oauth_scope: "https://api.botframework.com"
  markdown_channels: ["email"]
  speak_voice: ""               # e.g. en-US-JennyNeural

auth:
  jwt_secret: "${COVEN_BOTKIT_JWT_SECRET}"  # empty disables inbound auth
  issuer: ""
  audience: ""

storage:
  driver: "sqlite"              # memory, sqlite, redis
  path: "botkit.db"
  redis:
    addr: "localhost:6379"
    prefix: "botkit:"

typing:
  enabled: true
  delay: "500ms"
  period: "2s"

transcript:
  enabled: false
  path: ""                      # sqlite file, empty keeps transcripts in memory

dedupe:
  enabled: true
  ttl: "5m"
  max_size: 10000

logging:
  level: "info"                 # debug, info, warn, error
  format: "text"                # text, json

metrics:
  enabled: true
  path: "/metrics"
  namespace: "botkit"

tracing:
  enabled: false
  endpoint: "localhost:4317"
  service_name: "coven-botkit"
  sample_rate: 1.0
`
