package app

import "meetwatch/internal/config"

type Config = config.Config
