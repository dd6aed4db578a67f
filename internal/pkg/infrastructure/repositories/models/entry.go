package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

//StorageEntry is the database model that stores one JSON document under a unique key
type StorageEntry struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;size:128"`
	Value datatypes.JSON
}
