// Package database opens the optional MySQL connection used to record run
// history through GORM.
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    logger.Warn("Run history disabled", zap.Error(err))
//	}
package database
