package bootstrap

import (
	"github.com/vnykmshr/cacheboot/pkg/container"
)

// Bootstrap graph service names
const (
	ServiceDatabase         = "database"
	ServiceSettings         = "settings"
	ServiceRedisSettings    = "redis.settings"
	ServiceRedisFactory     = "redis.factory"
	ServiceInvalidator      = "redis.timestamp.invalidator.bin"
	ServiceRawClient        = "redis.backend.cache.container"
	ServiceTagsChecksum     = "cache_tags_provider.container"
	ServiceContainerBackend = "cache.container"
)

const (
	containerNamespaceTag = "container"
	defaultDatabaseKey    = "default"
	factoryMethodGet      = "get"
)

// Graph builds the bootstrap-phase container override. It is
// self-contained: database and settings are the only framework primitives
// and both are defined inline, so no extern is declared.
func Graph(tolerance float64, invalidatorBin string) (*container.Graph, error) {
	ref := container.Ref
	val := container.Value

	return container.NewBuilder().
		Primitive(ServiceDatabase, "database.Connection", "database.GetConnection", val(defaultDatabaseKey)).
		Primitive(ServiceSettings, "settings.Settings", "settings.Instance").
		Service(ServiceRedisSettings, container.Definition{
			Class:     "redis.Settings",
			Arguments: []container.Argument{ref(ServiceSettings)},
		}).
		Service(ServiceRedisFactory, container.Definition{
			Class:     "redis.DriverFactory",
			Arguments: []container.Argument{ref(ServiceRedisSettings)},
		}).
		Service(ServiceInvalidator, container.Definition{
			Class:     "redis.TimestampInvalidator",
			Arguments: []container.Argument{ref(ServiceRedisFactory), val(invalidatorBin), val(tolerance)},
		}).
		Service(ServiceRawClient, container.Definition{
			Class:     "redis.Client",
			Factory:   container.ServiceFactory(ServiceRedisFactory, factoryMethodGet),
			Arguments: []container.Argument{val(containerNamespaceTag)},
		}).
		Service(ServiceTagsChecksum, container.Definition{
			Class:     "cache.DatabaseTagsChecksum",
			Arguments: []container.Argument{ref(ServiceDatabase)},
		}).
		Service(ServiceContainerBackend, container.Definition{
			Class: "redis.Backend",
			Arguments: []container.Argument{
				val(containerNamespaceTag),
				ref(ServiceRawClient),
				ref(ServiceTagsChecksum),
				ref(ServiceInvalidator),
			},
		}).
		Build()
}
