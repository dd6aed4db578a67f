package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/datamodels/fiware"
	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"
	ngsitypes "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld/types"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
)

var soilMoistureModelID = fiware.DeviceModelIDPrefix + "acrelink-soil-moisture"

var errReadOnlyRegistry = errors.New("the sensor registry is read only over NGSI-LD, use the service API to change sensors")

func (router *RequestRouter) addNGSIHandlers(contextRegistry ngsi.ContextRegistry) {
	router.Get("/ngsi-ld/v1/entities", ngsi.NewQueryEntitiesHandler(contextRegistry))
}

func createContextRegistry(log logging.Logger, store *registry.Store) ngsi.ContextRegistry {
	contextRegistry := ngsi.NewContextRegistry()
	ctxSource := contextSource{store: store, log: log}
	contextRegistry.Register(&ctxSource)
	return contextRegistry
}

//contextSource publishes the registered sensors as NGSI-LD Device entities
type contextSource struct {
	store *registry.Store
	log   logging.Logger
}

func (cs contextSource) ProvidesEntitiesWithMatchingID(entityID string) bool {
	return strings.HasPrefix(entityID, fiware.DeviceIDPrefix)
}

func (cs *contextSource) CreateEntity(typeName, entityID string, req ngsi.Request) error {
	return errReadOnlyRegistry
}

func (cs *contextSource) GetEntities(query ngsi.Query, callback ngsi.QueryEntitiesCallback) error {
	if query == nil {
		return errors.New("GetEntities: query may not be nil")
	}

	for _, typeName := range query.EntityTypes() {
		if typeName == "Device" {
			for _, sensor := range cs.store.ListAll() {
				device, err := newFiwareDevice(sensor)
				if err != nil {
					return err
				}

				if err = callback(device); err != nil {
					return err
				}
			}
		} else if typeName == "DeviceModel" {
			model := fiware.NewDeviceModel(soilMoistureModelID, []string{"sensor"})
			model.BrandName = ngsitypes.NewTextProperty("AcreLink")
			model.ModelName = ngsitypes.NewTextProperty("Capacitive soil moisture sensor")
			model.ManufacturerName = ngsitypes.NewTextProperty("AcreLink")
			model.Name = ngsitypes.NewTextProperty("AcreLink soil moisture sensor")
			model.ControlledProperty = ngsitypes.NewTextListProperty([]string{"soilMoisture", "temperature"})

			if err := callback(model); err != nil {
				return err
			}
		}
	}

	return nil
}

func (cs contextSource) ProvidesAttribute(attributeName string) bool {
	return attributeName == "value" || attributeName == "location"
}

func (cs contextSource) ProvidesType(typeName string) bool {
	return typeName == "Device" || typeName == "DeviceModel"
}

func (cs *contextSource) UpdateEntityAttributes(entityID string, req ngsi.Request) error {
	return errReadOnlyRegistry
}

//newFiwareDevice maps a sensor onto a Device entity. The value carries the device
//snapshot and status as url encoded key=value pairs, and the location is the captured GPS fix.
func newFiwareDevice(sensor domain.SensorRecord) (*fiware.Device, error) {
	value := fmt.Sprintf("b=%.1f;rf=%d;status=%s", sensor.Device.Battery, sensor.Device.RF, sensor.Status)

	device := fiware.NewDevice(fiware.DeviceIDPrefix+sensor.ID, url.QueryEscape(value))
	device.RefDeviceModel, _ = fiware.NewDeviceModelRelationship(soilMoistureModelID)

	if sensor.GPS != nil {
		location := fmt.Sprintf(
			`{"location":{"type":"GeoProperty","value":{"type":"Point","coordinates":[%f,%f]}}}`,
			sensor.GPS.Longitude, sensor.GPS.Latitude,
		)
		located := &fiware.Device{}
		if err := json.Unmarshal([]byte(location), located); err != nil {
			return nil, fmt.Errorf("failed to set location of %s: %w", sensor.ID, err)
		}
		device.Location = located.Location
	}

	return device, nil
}
