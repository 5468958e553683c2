package bootstrap

import "github.com/turtacn/RAG-HealthBot/internal/interfaces/http/handlers"

// HealthCheckers returns one readiness probe per opened component.
func HealthCheckers(in *Infra) []handlers.HealthChecker {
	var cs []handlers.HealthChecker
	if in.Postgres != nil {
		cs = append(cs, handlers.NewChecker("postgres", in.Postgres.HealthCheck))
	}
	if in.Redis != nil {
		cs = append(cs, handlers.NewChecker("redis", in.Redis.Ping))
	}
	if in.MinIO != nil {
		cs = append(cs, handlers.NewChecker("minio", in.MinIO.HealthCheck))
	}
	if in.OpenSearch != nil {
		cs = append(cs, handlers.NewChecker("opensearch", in.OpenSearch.Ping))
	}
	if in.Milvus != nil {
		cs = append(cs, handlers.NewChecker("milvus", in.Milvus.CheckHealth))
	}
	return cs
}
