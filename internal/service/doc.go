// Package service содержит операции над flows, общие для HTTP API и CLI:
// создание flow с проверкой DAG и параметров, схемы полей для редактора,
// сводка по flows, ручной и разовый запуск, управление расписанием.
package service
